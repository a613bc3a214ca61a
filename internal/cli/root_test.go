package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-timescale/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("INGEST_CONFIG", "")
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mqtt-timescale", cmd.Use)

	for _, name := range []string{"serve", "resolve", "token"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestResolvePrintsRows(t *testing.T) {
	out, err := execute(t, "resolve",
		"--topic", "acme/paris/hq/north/3/301/hvac/s1/climate",
		"--payload", `{"temp":21.5,"on":true,"mode":"eco"}`,
		"--unit", "C")
	require.NoError(t, err)

	var decoded struct {
		Rows []struct {
			Measurement string             `json:"measurement"`
			Field       string             `json:"field"`
			Column      string             `json:"column"`
			Unit        *string            `json:"unit"`
			TagColumns  map[string]*string `json:"tag_columns"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded.Rows, 3)

	assert.Equal(t, "climate", decoded.Rows[0].Measurement)
	assert.Equal(t, []string{"temp", "on", "mode"}, []string{decoded.Rows[0].Field, decoded.Rows[1].Field, decoded.Rows[2].Field})
	assert.Equal(t, []string{"value_double", "value_bool", "value_text"}, []string{decoded.Rows[0].Column, decoded.Rows[1].Column, decoded.Rows[2].Column})
	require.NotNil(t, decoded.Rows[0].Unit)
	assert.Equal(t, "C", *decoded.Rows[0].Unit)
	require.NotNil(t, decoded.Rows[0].TagColumns["device"])
	assert.Equal(t, "s1", *decoded.Rows[0].TagColumns["device"])
	assert.Nil(t, decoded.Rows[0].TagColumns["name"])
}

func TestResolveNakedPayload(t *testing.T) {
	out, err := execute(t, "resolve",
		"--payload-type", "naked",
		"--schema", "home",
		"--measurement", "power",
		"--field", "watts",
		"--topic", "house/kitchen/main/ground/plug1",
		"--payload", "42")
	require.NoError(t, err)
	assert.Contains(t, out, `"column": "value_int"`)
	assert.Contains(t, out, `"field": "watts"`)
}

func TestResolveReportsValidationError(t *testing.T) {
	_, err := execute(t, "resolve", "--payload", `{"a":1}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no topic provided")
}

func TestTokenIssuesVerifiableJWT(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")
	out, err := execute(t, "token", "--role", "admin", "--subject", "ops", "--source", "plant-7")
	require.NoError(t, err)

	claims, err := auth.ParseJWT(strings.TrimSpace(out), []byte("cli-secret"))
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "plant-7", claims.Source)
}

func TestTokenRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err := execute(t, "token")
	require.Error(t, err)
}

type fakeService struct {
	started, stopped bool
	startErr         error
	done             chan os.Signal
}

func (s *fakeService) Start(context.Context) error { s.started = true; return s.startErr }
func (s *fakeService) Stop(context.Context) error  { s.stopped = true; return nil }
func (s *fakeService) Done() <-chan os.Signal      { return s.done }
func (s *fakeService) Err() error                  { return nil }

func TestRunServeStopsOnSignal(t *testing.T) {
	svc := &fakeService{done: make(chan os.Signal, 1)}
	svc.done <- syscall.SIGTERM

	err := runServe(context.Background(), svc, time.Second, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	assert.True(t, svc.started)
	assert.True(t, svc.stopped)
}

func TestRunServeStartFailure(t *testing.T) {
	svc := &fakeService{done: make(chan os.Signal), startErr: errors.New("dial tcp: refused")}
	err := runServe(context.Background(), svc, time.Second, log.New(io.Discard, "", 0))
	require.EqualError(t, err, "dial tcp: refused")
	assert.False(t, svc.stopped)
}
