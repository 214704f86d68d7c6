package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctuarypay/tithe-backend/api/controllers/webhooks"
	verifier "github.com/sanctuarypay/tithe-backend/internal/webhooks"
	"github.com/sanctuarypay/tithe-backend/pkg/auth"
	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/security"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{Secret: "jwt-secret", Issuer: "tithe-test", ExpirationMinutes: 5},
		Operator: config.OperatorConfig{
			ArgonMemoryKB:    64,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
		},
		Webhooks: config.WebhooksConfig{
			MpesaSecret:     "mpesa-secret",
			SquareSecret:    "square-secret",
			SquareNotifyURL: "https://giving.example.org/api/v1/webhooks/square",
		},
	}
}

func testCLI(cfg *config.Config, now time.Time) *cli {
	return &cli{
		loadConfig: func() (*config.Config, error) {
			if cfg == nil {
				return nil, errors.New("no config")
			}
			return cfg, nil
		},
		now: func() time.Time { return now },
	}
}

func run(t *testing.T, c *cli, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestWebhookSignMpesaFromStdin(t *testing.T) {
	body := `{"Body":{"stkCallback":{"ResultCode":0}}}`
	out, err := run(t, testCLI(testConfig(), time.Now()), body, "webhook", "sign", "--provider", "mpesa")
	require.NoError(t, err)

	prefix := webhooks.MpesaSignatureHeader + ": "
	require.True(t, strings.HasPrefix(out, prefix), out)
	sig := strings.TrimSpace(strings.TrimPrefix(out, prefix))
	assert.True(t, verifier.MpesaVerifier().Verify([]byte(body), sig, "mpesa-secret"))
}

func TestWebhookSignSquareFromFileWithOverrides(t *testing.T) {
	body := []byte(`{"type":"payment.updated"}`)
	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	out, err := run(t, testCLI(nil, time.Now()), "",
		"webhook", "sign", "-p", "square", "-f", path,
		"--secret", "override", "--notify-url", "https://hooks.local/square")
	require.NoError(t, err)

	prefix := webhooks.SquareSignatureHeader + ": "
	require.True(t, strings.HasPrefix(out, prefix), out)
	sig := strings.TrimSpace(strings.TrimPrefix(out, prefix))
	assert.True(t, verifier.SquareVerifier("https://hooks.local/square").Verify(body, sig, "override"))
}

func TestWebhookSignRejectsUnknownProvider(t *testing.T) {
	_, err := run(t, testCLI(testConfig(), time.Now()), "{}", "webhook", "sign", "--provider", "stripe")
	require.Error(t, err)
}

func TestWebhookSignWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Webhooks.MpesaSecret = ""
	_, err := run(t, testCLI(cfg, time.Now()), "{}", "webhook", "sign", "--provider", "mpesa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no webhook secret")
}

func TestAPIKeyHashVerifies(t *testing.T) {
	out, err := run(t, testCLI(testConfig(), time.Now()), "", "apikey", "hash", "operator-key-123")
	require.NoError(t, err)

	ok, err := security.VerifyAPIKey("operator-key-123", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAPIKeyGeneratePrintsMatchingPair(t *testing.T) {
	out, err := run(t, testCLI(testConfig(), time.Now()), "", "apikey", "generate", "--bytes", "16")
	require.NoError(t, err)

	var key, hash string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		switch {
		case strings.HasPrefix(line, "key:"):
			key = strings.TrimSpace(strings.TrimPrefix(line, "key:"))
		case strings.HasPrefix(line, "hash:"):
			hash = strings.TrimSpace(strings.TrimPrefix(line, "hash:"))
		}
	}
	require.NotEmpty(t, key)
	ok, err := security.VerifyAPIKey(key, hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTokenMintParses(t *testing.T) {
	cfg := testConfig()
	out, err := run(t, testCLI(cfg, time.Now()), "",
		"token", "mint", "--subject", "member-42", "--email", "giver@example.org")
	require.NoError(t, err)

	claims, err := auth.ParseMemberToken(cfg.JWT, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "member-42", claims.Subject)
	assert.Equal(t, "giver@example.org", claims.Email)
}

func TestTokenMintRequiresSubject(t *testing.T) {
	_, err := run(t, testCLI(testConfig(), time.Now()), "", "token", "mint")
	require.Error(t, err)
}

func TestIntentGetRejectsBadID(t *testing.T) {
	_, err := run(t, testCLI(testConfig(), time.Now()), "", "intent", "get", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid intent id")
}

func TestIntentFlaggedValidatesFlagsBeforeConnecting(t *testing.T) {
	_, err := run(t, testCLI(nil, time.Now()), "", "intent", "flagged", "--limit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--limit")

	_, err = run(t, testCLI(nil, time.Now()), "", "intent", "flagged", "--cursor", "garbage!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--cursor")
}

func TestOutboxDLQArgumentsValidatedBeforeConnecting(t *testing.T) {
	_, err := run(t, testCLI(nil, time.Now()), "", "outbox", "dlq", "requeue", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event id")

	_, err = run(t, testCLI(nil, time.Now()), "", "outbox", "dlq", "list", "--intent", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --intent")
}
