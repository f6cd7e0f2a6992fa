package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dirlistener/dirlistener/internal/cli/output"
	"github.com/dirlistener/dirlistener/pkg/config"
)

var (
	statusOutput string
	statusSecret string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the running listener's status",
	Long: `Query the dispatcher's operational state over the admin HTTP surface:
cursor position, active schema generation, loaded handler modules,
quarantine state, and recent errors.

Requires the admin HTTP surface to be enabled in the configuration and
reachable at its configured address. The admin secret can be passed
with --secret or the DIRLISTENER_STATUS_SECRET environment variable.

Examples:
  dirlistener status
  dirlistener status --output json
  DIRLISTENER_STATUS_SECRET=... dirlistener status`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
	statusCmd.Flags().StringVar(&statusSecret, "secret", "", "Admin secret (default: $DIRLISTENER_STATUS_SECRET)")
}

type statusEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type loginResponseData struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type statusResponseData struct {
	Cursor struct {
		NotifierID    string `json:"notifier_id"`
		ChangeNumber  uint64 `json:"change_number"`
		SchemaID      string `json:"schema_id"`
		ModuleSetHash string `json:"module_set_hash"`
	} `json:"cursor"`
	ActiveSchemaID string `json:"active_schema_id,omitempty"`
	CacheSize      int    `json:"cache_entries"`
	Modules []struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Priority    float64 `json:"priority"`
	} `json:"modules"`
	Quarantined bool `json:"quarantined"`
	RecentErr   []struct {
		Time  time.Time `json:"time"`
		Error string    `json:"error"`
	} `json:"recent_errors,omitempty"`
}

func (s statusResponseData) Headers() []string {
	return []string{"FIELD", "VALUE"}
}

func (s statusResponseData) Rows() [][]string {
	rows := [][]string{
		{"cursor.change_number", fmt.Sprintf("%d", s.Cursor.ChangeNumber)},
		{"cursor.schema_id", s.Cursor.SchemaID},
		{"cursor.notifier_id", s.Cursor.NotifierID},
		{"active_schema_id", s.ActiveSchemaID},
		{"cache_entries", strconv.Itoa(s.CacheSize)},
		{"modules_loaded", strconv.Itoa(len(s.Modules))},
		{"quarantined", strconv.FormatBool(s.Quarantined)},
	}
	if len(s.RecentErr) > 0 {
		rows = append(rows, []string{"recent_errors", strconv.Itoa(len(s.RecentErr))})
	}
	return rows
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if !cfg.API.Enabled {
		return fmt.Errorf("the admin HTTP surface is disabled in this configuration (api.enabled: false)")
	}

	secret := statusSecret
	if secret == "" {
		secret = os.Getenv("DIRLISTENER_STATUS_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("an admin secret is required: pass --secret or set DIRLISTENER_STATUS_SECRET")
	}

	baseURL := "http://" + cfg.API.Address
	client := &http.Client{Timeout: 5 * time.Second}

	token, err := adminLogin(client, baseURL, secret)
	if err != nil {
		return err
	}

	var status statusResponseData
	if err := adminGet(client, baseURL, "/status", token, &status); err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		return output.PrintTable(os.Stdout, status)
	}
}

func adminLogin(client *http.Client, baseURL, secret string) (string, error) {
	body, err := json.Marshal(map[string]string{"secret": secret})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(baseURL+"/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to reach admin API at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	var env statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("malformed login response: %w", err)
	}
	if env.Status != "ok" {
		return "", fmt.Errorf("login failed: %s", env.Error)
	}

	var data loginResponseData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("malformed login response data: %w", err)
	}
	return data.Token, nil
}

func adminGet(client *http.Client, baseURL, path, token string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach admin API at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	var env statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("malformed response from %s: %w", path, err)
	}
	if env.Status != "ok" {
		return fmt.Errorf("%s failed: %s", path, env.Error)
	}
	return json.Unmarshal(env.Data, out)
}
