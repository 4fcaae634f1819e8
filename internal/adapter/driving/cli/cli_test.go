package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/homevault/internal/adapter/driven/crypto"
	"github.com/ericfisherdev/homevault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/homevault/internal/application"
	"github.com/ericfisherdev/homevault/internal/domain/model"
)

type harness struct {
	t      *testing.T
	dbPath string
	key    crypto.Key
	opens  int
	closes int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &harness{
		t:      t,
		dbPath: filepath.Join(t.TempDir(), ".homelab", "homelab.db"),
		key:    key,
	}
}

func (h *harness) open(ctx context.Context) (*Services, func() error, error) {
	h.opens++
	db, err := sqlite.NewDB(ctx, h.dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := sqlite.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	engine, err := crypto.NewEngine(h.key)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	creds := sqlite.NewCredentialRepo(db)
	audit := sqlite.NewAuditRepo(db)
	svc := &Services{
		Vault: application.NewVaultService(creds, audit, engine, application.VaultConfig{StoreTimeout: 5 * time.Second, Logger: logger}),
		Audit: application.NewAuditService(audit, 5*time.Second, logger),
	}
	return svc, func() error {
		h.closes++
		return db.Close()
	}, nil
}

// run executes one command line. answers feed the prompts in order.
func (h *harness) run(answers []string, args ...string) (string, string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	err := Run(context.Background(), Options{
		Open:   h.open,
		Actor:  "tester",
		Prompt: queuePrompter(answers),
		Out:    &out,
		Err:    &errOut,
	}, args)
	return out.String(), errOut.String(), err
}

func (h *harness) mustRun(answers []string, args ...string) string {
	h.t.Helper()
	out, errOut, err := h.run(answers, args...)
	require.NoError(h.t, err, "stderr: %s", errOut)
	return out
}

func queuePrompter(answers []string) Prompter {
	return func(label string) (string, error) {
		if len(answers) == 0 {
			return "", errors.New("unexpected prompt: " + label)
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
}

func (h *harness) auditEntries() []model.AuditEntry {
	h.t.Helper()
	var entries []model.AuditEntry
	require.NoError(h.t, json.Unmarshal([]byte(h.mustRun(nil, "audit", "list", "-o", "json")), &entries))
	return entries
}

func TestAddAndGet(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun([]string{"s3cr3t"}, "add", "device", "NAS", "--username", "admin", "--password", "--name", "synology")
	assert.Contains(t, out, "credential 1 stored for device:NAS")

	out = h.mustRun(nil, "get", "device:NAS")
	assert.Contains(t, out, "admin")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "s3cr3t")

	out = h.mustRun(nil, "get", "device:synology", "--reveal", "-o", "json")
	var cred credentialOutput
	require.NoError(t, json.Unmarshal([]byte(out), &cred))
	assert.Equal(t, "device:synology", cred.Target)
	assert.Equal(t, "s3cr3t", cred.Password)
	assert.Empty(t, cred.APIToken)
	assert.Equal(t, model.AuthTypePassword, cred.AuthType)

	entries := h.auditEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, model.ActionCredentialAccessed, entries[0].Action)
	assert.Equal(t, "tester", entries[0].User)
	assert.Equal(t, model.ActionCredentialAdded, entries[2].Action)
}

func TestAdd_ValidationIsAudited(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(nil, "add", "printer", "hp", "--username", "admin", "--ssh-key", "/k")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)

	entries := h.auditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionCredentialAddFailed, entries[0].Action)
	assert.Equal(t, "invalid_type", entries[0].Details)
}

func TestGet_Failures(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(nil, "get", "device:ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, _, err = h.run(nil, "get", "printer:hp")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, _, err = h.run(nil, "get", "device")
	assert.ErrorIs(t, err, model.ErrValidation)

	entries := h.auditEntries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, model.ActionCredentialAccessFailed, e.Action)
		assert.False(t, e.Success)
	}
	assert.Equal(t, "invalid_type", entries[0].Details)
	assert.Equal(t, "not_found", entries[2].Details)
}

func TestGet_WrongKeyShowsMarker(t *testing.T) {
	h := newHarness(t)
	h.mustRun([]string{"s3cr3t"}, "add", "vm", "k3s", "--username", "ubuntu", "--password")

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	h.key = other

	out, errOut, err := h.run(nil, "get", "vm:k3s", "--reveal")
	require.NoError(t, err)
	assert.Contains(t, out, "ubuntu")
	assert.Contains(t, out, model.UndecryptableMarker)
	assert.Contains(t, errOut, "could not be decrypted")

	_, _, err = h.run(nil, "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 secret field(s) failed to decrypt")
}

func TestListAndDelete(t *testing.T) {
	h := newHarness(t)
	h.mustRun([]string{"pw"}, "add", "host", "pve1", "--username", "root", "--password", "--root")
	h.mustRun([]string{"tok"}, "add", "service", "grafana", "--username", "admin", "--api-token")

	out := h.mustRun(nil, "list")
	assert.Contains(t, out, "host:pve1")
	assert.Contains(t, out, "service:grafana")
	assert.Contains(t, out, "api_token")

	var summaries []model.CredentialSummary
	require.NoError(t, yaml.Unmarshal([]byte(h.mustRun(nil, "list", "-o", "yaml")), &summaries))
	require.Len(t, summaries, 2)
	assert.True(t, summaries[0].IsRoot)
	assert.Equal(t, model.AuthTypeToken, summaries[1].AuthType)

	out = h.mustRun(nil, "delete", "1")
	assert.Contains(t, out, "credential 1 deleted")

	_, _, err := h.run(nil, "delete", "1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, _, err = h.run(nil, "delete", "abc")
	require.Error(t, err)

	out = h.mustRun(nil, "list", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "grafana", summaries[0].TargetID)
}

func TestList_EmptyJSONIsArray(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(nil, "list", "-o", "json")
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestVerify(t *testing.T) {
	h := newHarness(t)
	h.mustRun([]string{"pw", "tok"}, "add", "service", "gitea", "--username", "admin", "--password", "--api-token")

	out := h.mustRun(nil, "verify", "-o", "json")
	var report verifyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Records)
	assert.Equal(t, 2, report.Fields)
	assert.Empty(t, report.Failures)

	entries := h.auditEntries()
	assert.Equal(t, model.ActionCredentialsVerified, entries[0].Action)
	assert.Equal(t, "records=1 fields=2 undecryptable=0", entries[0].Details)
}

func TestAuditRecordAndFilter(t *testing.T) {
	h := newHarness(t)
	h.mustRun(nil, "audit", "record", "--action", "vm_created", "--target-type", "vm", "--target-id", "112")
	h.mustRun(nil, "audit", "record", "--action", "host_created", "--target-type", "host", "--target-id", "pve2", "--failed")
	h.mustRun(nil, "audit", "record", "--action", "vm_status_updated", "--target-type", "vm", "--target-id", "112", "--details", "running -> stopped")

	var entries []model.AuditEntry
	out := h.mustRun(nil, "audit", "list", "--target-type", "vm", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionVMStatusUpdated, entries[0].Action)
	assert.Equal(t, "running -> stopped", entries[0].Details)
	assert.Equal(t, "tester", entries[0].User)

	out = h.mustRun(nil, "audit", "list", "--action", "host_created", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)

	out = h.mustRun(nil, "audit", "list", "--since", "1h", "--limit", "1", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 1)

	out = h.mustRun(nil, "audit", "list")
	assert.Contains(t, out, "host:pve2")
	assert.Contains(t, out, "failed")

	_, _, err := h.run(nil, "audit", "record", "--target-type", "vm")
	require.Error(t, err)

	_, _, err = h.run(nil, "audit", "list", "--since", "yesterday-ish")
	require.Error(t, err)
}

func TestAuditLogIsAppendOnly(t *testing.T) {
	h := newHarness(t)
	h.mustRun(nil, "audit", "record", "--action", "host_created")

	db, err := sql.Open("sqlite", h.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`DELETE FROM audit_log`)
	require.Error(t, err)
	assert.Len(t, h.auditEntries(), 1)
}

func TestDeriveKey(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun([]string{"correct horse", "correct horse"}, "derive-key", "-o", "json")
	var first derivedKeyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, crypto.PBKDF2Iterations, first.Iterations)
	_, err := crypto.ParseKey(first.Key)
	require.NoError(t, err)

	out = h.mustRun([]string{"correct horse"}, "derive-key", "--salt", first.Salt, "-o", "json")
	var again derivedKeyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Equal(t, first.Key, again.Key)
	assert.Equal(t, first.Fingerprint, again.Fingerprint)

	_, _, err = h.run([]string{"a", "b"}, "derive-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")

	assert.Zero(t, h.opens, "derive-key must not open the vault")
}

func TestStoreIsClosedAfterEachCommand(t *testing.T) {
	h := newHarness(t)
	h.mustRun(nil, "list")
	_, _, _ = h.run(nil, "get", "device:ghost")
	assert.Equal(t, 2, h.opens)
	assert.Equal(t, h.opens, h.closes)
}

func TestUnknownOutputFormat(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(nil, "list", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
	assert.Zero(t, h.opens)
}

func TestOpenErrorAborts(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Open: func(context.Context) (*Services, func() error, error) {
			return nil, nil, &model.ConfigurationError{Path: "/root/.homelab/.db_key", Msg: "permissions too open"}
		},
		Out: &out,
		Err: &out,
	}, []string{"list"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfiguration)
	assert.Empty(t, out.String())
}
