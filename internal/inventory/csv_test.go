package inventory

import (
	"encoding/csv"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/netdash/internal/projection"
	"github.com/HerbHall/netdash/internal/testutil"
	"github.com/HerbHall/netdash/pkg/models"
)

func TestDeviceToCSVRow_ColumnCount(t *testing.T) {
	v := projection.DeviceView{
		Key: coreKey,
		Device: testutil.NewDevice(
			testutil.WithHostname("core-sw"),
			testutil.WithMAC(coreMAC),
			testutil.WithIP("10.0.0.1"),
		),
		Unread:        2,
		AlertCount:    3,
		HasCredential: true,
	}

	row := deviceToCSVRow(v)

	if len(row) != len(csvHeaders()) {
		t.Fatalf("expected %d columns, got %d", len(csvHeaders()), len(row))
	}
	if row[0] != coreKey {
		t.Errorf("key: got %q, want %q", row[0], coreKey)
	}
	if row[1] != "core-sw" {
		t.Errorf("hostname: got %q, want %q", row[1], "core-sw")
	}
	if row[11] != "2" || row[12] != "3" || row[13] != "true" {
		t.Errorf("counters: got %v", row[11:])
	}
}

func TestHandleExport(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(), true)

	w := env.do(http.MethodGet, "/export?status=active", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeaders(), records[0])
	assert.Equal(t, coreKey, records[1][0])
	assert.Equal(t, string(models.DeviceStatusActive), records[1][5])
	assert.Equal(t, "1", records[1][11])
	assert.Equal(t, "true", records[1][13])
}

func TestHandleExport_BadQuery(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(), true)

	w := env.do(http.MethodGet, "/export?status=broken", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
