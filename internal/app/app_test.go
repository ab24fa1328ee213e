package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malganis13/g2a-automation/internal/config"
	"github.com/malganis13/g2a-automation/internal/pricing"
	"github.com/malganis13/g2a-automation/internal/storage"
)

func newTestApp(t *testing.T, env map[string]string) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("REPRICER_APP_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("REPRICER_STORAGE_PATH", filepath.Join(dir, "repricer.db"))
	t.Setenv("REPRICER_G2A_RETRY_DELAY", "1ms")
	t.Setenv("REPRICER_G2A_JOB_POLL_DELAY", "1ms")
	for k, v := range env {
		t.Setenv(k, v)
	}

	loader := config.NewLoader("")
	_, err := loader.Load()
	require.NoError(t, err)

	a := NewApp(loader, zerolog.Nop())
	out := &bytes.Buffer{}
	a.Out = out
	return a, out
}

func seedChanges(t *testing.T, a *App, changes ...storage.PriceChange) {
	t.Helper()
	ctx := context.Background()
	store, closeStore, err := a.openStore(ctx)
	require.NoError(t, err)
	defer closeStore()
	for _, c := range changes {
		_, err := store.AppendPriceChange(ctx, c)
		require.NoError(t, err)
	}
}

func change(product, oldP, newP string, at time.Time) storage.PriceChange {
	o, n := decimal.RequireFromString(oldP), decimal.RequireFromString(newP)
	return storage.PriceChange{
		CycleID:         "cycle-1",
		ProductID:       product,
		DisplayName:     "Game " + product,
		OldPrice:        o,
		NewPrice:        n,
		CompetitorPrice: n.Add(pricing.Cent),
		Delta:           n.Sub(o),
		Reason:          "undercut competitor",
		CreatedAt:       at,
	}
}

func TestExportWritesCSV(t *testing.T) {
	a, _ := newTestApp(t, nil)
	now := time.Now().UTC()
	seedChanges(t, a,
		change("1", "5.50", "4.99", now.Add(-3*time.Hour)),
		change("2", "3.00", "2.49", now.Add(-2*time.Hour)),
		change("1", "4.99", "5.20", now.Add(-time.Hour)),
	)

	path := filepath.Join(t.TempDir(), "out", "changes.csv")
	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: path}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "product_id", rows[0][2])
	assert.Equal(t, "-0.51", rows[1][7])
	assert.Equal(t, "0.21", rows[3][7])
}

func TestExportFiltersProduct(t *testing.T) {
	a, _ := newTestApp(t, nil)
	now := time.Now().UTC()
	seedChanges(t, a,
		change("1", "5.50", "4.99", now.Add(-3*time.Hour)),
		change("2", "3.00", "2.49", now.Add(-2*time.Hour)),
	)

	path := filepath.Join(t.TempDir(), "one.csv")
	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: path, ProductID: "2"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(raw), "\n"))
	assert.Contains(t, string(raw), "Game 2")
}

func TestExportRequiresOutput(t *testing.T) {
	a, _ := newTestApp(t, nil)
	require.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestDownsampleChangesKeepsEnds(t *testing.T) {
	now := time.Now()
	changes := make([]storage.PriceChange, 10)
	for i := range changes {
		changes[i] = change("1", "1.00", "2.00", now.Add(time.Duration(i)*time.Minute))
		changes[i].ID = int64(i)
	}

	got := downsampleChanges(changes, 3)
	require.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].ID)
	assert.Equal(t, int64(9), got[2].ID)
	assert.Len(t, downsampleChanges(changes, 0), 10)
}

func TestStatsAndHistory(t *testing.T) {
	a, out := newTestApp(t, nil)
	now := time.Now().UTC()
	seedChanges(t, a,
		change("1", "5.50", "4.99", now.Add(-3*time.Hour)),
		change("2", "3.00", "2.49", now.Add(-2*time.Hour)),
		change("1", "4.99", "5.20", now.Add(-time.Hour)),
		change("3", "9.00", "8.00", now.AddDate(0, 0, -10)),
	)

	require.NoError(t, a.Stats(context.Background(), StatsOptions{Days: 7}))
	text := out.String()
	assert.Regexp(t, `Changes\s+3`, text)
	assert.Regexp(t, `Increases\s+1`, text)
	assert.Regexp(t, `Decreases\s+2`, text)
	assert.Regexp(t, `Total change\s+-0\.81`, text)
	assert.Regexp(t, `Average change\s+-0\.27`, text)

	out.Reset()
	require.NoError(t, a.History(context.Background(), HistoryOptions{Limit: 2}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "5.20")

	require.Error(t, a.Stats(context.Background(), StatsOptions{Days: 0}))
}

func TestSettingsAndPolicyCommands(t *testing.T) {
	a, out := newTestApp(t, nil)
	ctx := context.Background()

	enabled, limit := true, 5
	require.NoError(t, a.UpdateSettings(ctx, SettingsUpdate{Enabled: &enabled, DailyLimit: &limit}))
	out.Reset()
	require.NoError(t, a.ShowSettings(ctx))
	assert.Regexp(t, `enabled\s+true`, out.String())
	assert.Regexp(t, `daily_limit\s+5`, out.String())

	require.Error(t, a.UpdateSettings(ctx, SettingsUpdate{}))

	out.Reset()
	require.NoError(t, a.ToggleProduct(ctx, "77", false))
	assert.Regexp(t, `excluded_products\s+77`, out.String())

	floor := decimal.RequireFromString("5")
	require.NoError(t, a.SetPolicy(ctx, "1001", pricing.OverrideUpdate{FloorPrice: &floor}))

	out.Reset()
	require.NoError(t, a.ListPolicies(ctx))
	assert.Contains(t, out.String(), "1001")
	assert.Contains(t, out.String(), "5.00")

	out.Reset()
	require.NoError(t, a.ShowPolicy(ctx, "1001"))
	assert.Regexp(t, `floor\s+5\.00\s+product`, out.String())
	assert.Regexp(t, `undercut\s+0\.01\s+global`, out.String())

	out.Reset()
	require.NoError(t, a.Budget(ctx))
	assert.Regexp(t, `remaining\s+5`, out.String())

	require.NoError(t, a.DeletePolicy(ctx, "1001"))
	out.Reset()
	require.NoError(t, a.ListPolicies(ctx))
	assert.Contains(t, out.String(), "no product policies stored")
}

func marketplace(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok"})
	})
	mux.HandleFunc("GET /v3/sales/offers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"o1","type":"dropshipping","status":"active","price":5.5,
			"inventory":{"size":2},"product":{"id":1001,"name":"Game A"}}],"meta":{"totalResults":1}}`))
	})
	mux.HandleFunc("GET /v1/products", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"docs":[{"id":1001,"name":"Game A","retailMinBasePrice":5.00,"qty":3}]}`))
	})
	mux.HandleFunc("GET /v3/sales/offers/{id}", func(w http.ResponseWriter, r *http.Request) {
		stock := 7
		if r.PathValue("id") == "o9" {
			stock = 3
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"id": r.PathValue("id"), "type": "dropshipping", "status": "active",
			"product":  map[string]any{"id": 1001},
			"variants": []map[string]any{{"inventory": map[string]any{"size": stock}, "price": 5.5, "active": true}},
		}})
	})
	mux.HandleFunc("POST /v3/sales/offers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"conflict","data":{"offerId":"o9"}}`))
	})
	mux.HandleFunc("PATCH /v3/sales/offers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func marketplaceEnv(srv *httptest.Server) map[string]string {
	return map[string]string{
		"REPRICER_G2A_BASE_URL":      srv.URL,
		"REPRICER_G2A_CLIENT_ID":     "id",
		"REPRICER_G2A_CLIENT_SECRET": "secret",
		"REPRICER_REPRICING_ENABLED": "true",
	}
}

func TestInspectReportsPosition(t *testing.T) {
	srv := marketplace(t)
	a, out := newTestApp(t, marketplaceEnv(srv))

	require.NoError(t, a.Inspect(context.Background(), "1001"))
	text := out.String()
	assert.Regexp(t, `stock\s+7`, text)
	assert.Regexp(t, `top price\s+5\.00`, text)
	assert.Contains(t, text, "2nd")
	assert.Regexp(t, `margin\s+0\.50`, text)
	assert.Contains(t, text, "change to 4.99")

	require.Error(t, a.Inspect(context.Background(), "9999"))
}

func TestCreateOfferRecoversExisting(t *testing.T) {
	srv := marketplace(t)
	a, out := newTestApp(t, marketplaceEnv(srv))

	require.NoError(t, a.CreateOffer(context.Background(), "1001", decimal.RequireFromString("4.50"), 1))
	assert.Contains(t, out.String(), "stock 3 -> 4")

	require.Error(t, a.CreateOffer(context.Background(), "1001", decimal.Zero, 1))
}
