package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"inventario-backend/internal/auth"
	"inventario-backend/internal/capture"
	"inventario-backend/internal/config"
	"inventario-backend/internal/database"
	"inventario-backend/internal/locker"
	"inventario-backend/internal/models"
	"inventario-backend/internal/retry"
	"inventario-backend/internal/syncclient"
)

const testBaseURL = "http://inventario.test"

// appTransport routes device HTTP calls straight into the fiber app.
type appTransport struct{ app *fiber.App }

func (t appTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.app.Test(r, -1)
}

type testServer struct {
	app      *fiber.App
	db       *gorm.DB
	tenant   models.Tenant
	admin    models.User
	counter  models.User
	verifier models.User
	tokens   map[models.UserRole]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		JWTSecret:          strings.Repeat("k", 32),
		CORSOrigins:        "http://localhost:5173",
		CatalogLookupChunk: 1000,
	}
	ts := &testServer{
		app:    New(cfg, db, locker.NewLocal()),
		db:     db,
		tenant: models.Tenant{Name: "Ferreteria Norte"},
		tokens: make(map[models.UserRole]string),
	}
	require.NoError(t, db.Create(&ts.tenant).Error)

	ts.admin = models.User{Name: "Root", Email: "root@example.com", PasswordHash: "-", Role: models.RoleAdmin}
	ts.counter = models.User{Name: "Ana", Email: "ana@example.com", PasswordHash: "-", Role: models.RoleCounter, TenantID: &ts.tenant.ID}
	ts.verifier = models.User{Name: "Luis", Email: "luis@example.com", PasswordHash: "-", Role: models.RoleVerifier, TenantID: &ts.tenant.ID}
	for _, u := range []*models.User{&ts.admin, &ts.counter, &ts.verifier} {
		require.NoError(t, db.Create(u).Error)
		token, err := auth.GenerateToken(cfg.JWTSecret, u)
		require.NoError(t, err)
		ts.tokens[u.Role] = token
	}
	return ts
}

func (ts *testServer) device(role models.UserRole) *syncclient.APIClient {
	return syncclient.NewAPIClient(testBaseURL, ts.tokens[role], 5*time.Second).
		WithHTTPClient(&http.Client{Transport: appTransport{ts.app}})
}

func (ts *testServer) call(t *testing.T, method, path string, role models.UserRole, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, testBaseURL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token, ok := ts.tokens[role]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func openDeviceStore(t *testing.T) *capture.Store {
	t.Helper()
	s, err := capture.Open(filepath.Join(t.TempDir(), "capture.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		Sleep:       func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func TestEndToEnd_CountSyncFuseCommit(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	status, body := ts.call(t, http.MethodPost, "/api/catalog/import", models.RoleAdmin, fiber.Map{
		"tenant_id": ts.tenant.ID,
		"items":     []fiber.Map{{"product_code": "P1", "description": "Tornillo 3/8", "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, status, body)

	// counter device: P1 three times and P2 once at A1
	counterStore := openDeviceStore(t)
	info, err := capture.NewSessionInfo("M-001", "Bodega", ts.tenant.ID, capture.Actor{ID: ts.counter.ID, Name: ts.counter.Name}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	sess := capture.FixedLocationSession{SessionInfo: info, Location: "A1"}
	require.NoError(t, counterStore.StartSession(ctx, sess))
	for _, code := range []string{"P1", "P1", "P2", "P1"} {
		_, err := counterStore.RecordScan(ctx, sess, code, "")
		require.NoError(t, err)
	}

	client := syncclient.New(counterStore, ts.device(models.RoleCounter), syncclient.Options{Policy: fastPolicy()})
	res, err := client.Sync(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsCommitted)
	left, err := counterStore.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)

	// verifier device
	verifierAPI := ts.device(models.RoleVerifier)
	fused, err := verifierAPI.FetchBatch(ctx, ts.tenant.ID, "M-001")
	require.NoError(t, err)
	require.Len(t, fused.Items, 2)

	p1, p2 := fused.Items[0], fused.Items[1]
	assert.Equal(t, "P1", p1.ProductCode)
	assert.Equal(t, 3, p1.CountedQuantity)
	assert.Equal(t, 3, p1.SystemQuantity)
	assert.Equal(t, 0, p1.Variance)
	assert.True(t, p1.InMasterCatalog)
	assert.Equal(t, "A1", p1.Location)

	assert.Equal(t, "P2", p2.ProductCode)
	assert.Equal(t, 1, p2.CountedQuantity)
	assert.Equal(t, 1, p2.Variance)
	assert.False(t, p2.InMasterCatalog)

	verifierStore := openDeviceStore(t)
	_, err = syncclient.OpenVerification(ctx, verifierAPI, verifierStore, ts.tenant.ID, "M-001")
	require.NoError(t, err)
	require.NoError(t, verifierStore.SetVerified(ctx, "P2", 2))

	n, err := syncclient.CommitVerification(ctx, verifierAPI, verifierStore, capture.Actor{ID: ts.verifier.ID, Name: ts.verifier.Name}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var rows []models.VerificationRecord
	require.NoError(t, ts.db.Order("product_code").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[1].VerifiedQuantity)
	assert.Equal(t, 2, rows[1].Variance)
	assert.True(t, rows[1].Forced)
	assert.Equal(t, ts.verifier.ID, rows[1].VerifierID)

	// the batch is closed now
	_, err = verifierAPI.FetchBatch(ctx, ts.tenant.ID, "M-001")
	assert.True(t, syncclient.IsConflict(err))

	var entries []models.AuditLog
	require.NoError(t, ts.db.Order("id").Find(&entries).Error)
	require.Len(t, entries, 3)
	assert.Equal(t, "catalog", entries[0].EntityType)
	assert.Equal(t, "scan_batch", entries[1].EntityType)
	assert.Equal(t, "verification", entries[2].EntityType)

	status, body = ts.call(t, http.MethodGet, "/api/stats/lifetime/"+itoa(ts.verifier.ID), models.RoleVerifier, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 5.0, body["pieces_verified"])
	assert.Equal(t, 50.0, body["precision"])
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.call(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotEmpty(t, body["error"])

	status, body = ts.call(t, http.MethodPost, "/api/counts/sync", models.RoleCounter, fiber.Map{"items": []fiber.Map{}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, map[string]any{"items": "min"}, body["fields"])

	status, _ = ts.call(t, http.MethodGet, "/api/verification/batch?control_batch_id=M-1", models.RoleCounter, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.call(t, http.MethodPost, "/api/catalog/import", models.RoleCounter, fiber.Map{})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.call(t, http.MethodGet, "/api/counts/history/"+itoa(ts.verifier.ID), models.RoleCounter, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = ts.call(t, http.MethodGet, "/api/verification/batch", models.RoleVerifier, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])

	status, _ = ts.call(t, http.MethodGet, "/api/stats/session/"+itoa(ts.counter.ID)+"?role=admin", models.RoleCounter, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCommit_SecondCommitConflicts(t *testing.T) {
	ts := newTestServer(t)
	commit := fiber.Map{
		"control_batch_id": "M-77",
		"duration_seconds": 60,
		"items": []fiber.Map{
			{"product_code": "P9", "system_quantity": 50, "counted_quantity": 62, "verified_quantity": 62, "variance": 0, "in_master_catalog": true},
		},
	}

	status, body := ts.call(t, http.MethodPost, "/api/verification/commit", models.RoleVerifier, commit)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, 1.0, body["count"])

	var row models.VerificationRecord
	require.NoError(t, ts.db.First(&row).Error)
	assert.Equal(t, 12, row.Variance)
	assert.Equal(t, ts.tenant.ID, row.TenantID)

	status, _ = ts.call(t, http.MethodPost, "/api/verification/commit", models.RoleVerifier, commit)
	assert.Equal(t, http.StatusConflict, status)

	status, body = ts.call(t, http.MethodGet, "/api/stats/session/"+itoa(ts.verifier.ID), models.RoleVerifier, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0h 1m", body["active_time"])
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.db.Where("role = ?", models.RoleAdmin).Delete(&models.User{}).Error)

	status, body := ts.call(t, http.MethodPost, "/api/auth/register-admin", "", fiber.Map{
		"name": "Owner", "email": "Owner@Example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, _ = ts.call(t, http.MethodPost, "/api/auth/register-admin", "", fiber.Map{
		"name": "Second", "email": "second@example.com", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.call(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"email": "owner@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = ts.call(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"email": "owner@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	ts.tokens[models.RoleAdmin] = token
	me, err := ts.device(models.RoleAdmin).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", me.Email)
	assert.Equal(t, string(models.RoleAdmin), me.Role)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestCatalogSpreadsheetUpload(t *testing.T) {
	ts := newTestServer(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"SKU", "Descripcion", "Cantidad", "Ubicacion"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"X1", "Taladro", 4, "R-2"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"X2", "Broca", 30, ""}))
	xlsx, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	upload := func(role models.UserRole, filename string) *http.Response {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("tenant_id", strconv.FormatUint(uint64(ts.tenant.ID), 10)))
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(xlsx.Bytes())
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, testBaseURL+"/api/catalog/import/xlsx", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+ts.tokens[role])
		resp, err := ts.app.Test(req, -1)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusForbidden, upload(models.RoleCounter, "catalog.xlsx").StatusCode)
	assert.Equal(t, http.StatusBadRequest, upload(models.RoleAdmin, "catalog.csv").StatusCode)

	resp := upload(models.RoleAdmin, "catalog.xlsx")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var products []models.MasterProduct
	require.NoError(t, ts.db.Order("product_code").Find(&products, "tenant_id = ?", ts.tenant.ID).Error)
	require.Len(t, products, 2)
	assert.Equal(t, "Taladro", products[0].Description)
	assert.Equal(t, 4, products[0].Quantity)
	require.NotNil(t, products[0].Location)
	assert.Equal(t, "R-2", *products[0].Location)
	assert.Nil(t, products[1].Location)

	var entry models.AuditLog
	require.NoError(t, ts.db.Where("entity_type = ?", "catalog").First(&entry).Error)
	assert.Contains(t, entry.Description, "2 products imported")
}
