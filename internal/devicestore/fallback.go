package devicestore

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/HerbHall/netdash/internal/normalize"
	"github.com/HerbHall/netdash/pkg/models"
)

//go:embed fallback.yaml
var fallbackYAML []byte

// Dataset is a device and credential list pair that is always shown as a
// whole.
type Dataset struct {
	Devices     []models.DeviceRecord
	Credentials []models.CredentialRecord
}

var (
	bundledOnce sync.Once
	bundled     Dataset
	bundledErr  error
)

// BundledDataset returns the embedded fallback dataset, normalized.
func BundledDataset() (Dataset, error) {
	bundledOnce.Do(func() {
		bundled, bundledErr = ParseDataset(fallbackYAML)
	})
	return bundled, bundledErr
}

// ParseDataset decodes a YAML (or JSON) document with devices and
// credentials lists and runs both through the normalizer.
func ParseDataset(data []byte) (Dataset, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Dataset{}, fmt.Errorf("parse fallback dataset: %w", err)
	}
	return Dataset{
		Devices:     dedupe(normalize.Devices(doc["devices"])),
		Credentials: normalize.Credentials(doc["credentials"]),
	}, nil
}
