package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dspace-go/dsfront/internal/webclient"
)

// AppConfigPath is where the UI publishes its runtime configuration.
const AppConfigPath = "/assets/config.json"

// AppConfig is the runtime configuration document. Only the keys present in
// the document override the environment.
type AppConfig map[string]any

// FetchAppConfig downloads and parses the runtime configuration document.
func FetchAppConfig(ctx context.Context, wc webclient.WebClient, url string) (AppConfig, error) {
	resp, err := wc.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch app config: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetch app config: unexpected status %d", resp.StatusCode)
	}
	return ParseAppConfig(resp.Body)
}

// ParseAppConfig parses a runtime configuration document.
func ParseAppConfig(body []byte) (AppConfig, error) {
	var cfg AppConfig
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse app config: %w", err)
	}
	if cfg == nil {
		cfg = AppConfig{}
	}
	return cfg, nil
}

// ExtendEnvironmentWithAppConfig returns env with every key of app applied on
// top. Nested objects merge; scalars replace.
func ExtendEnvironmentWithAppConfig(env Environment, app AppConfig) (Environment, error) {
	if len(app) == 0 {
		return env, nil
	}
	raw, err := json.Marshal(app)
	if err != nil {
		return env, fmt.Errorf("encode app config: %w", err)
	}
	// Unmarshalling onto a populated struct only touches the keys present.
	out := env
	if err := json.Unmarshal(raw, &out); err != nil {
		return env, fmt.Errorf("apply app config: %w", err)
	}
	return out, nil
}

// AppConfigFor renders the document the UI serves at AppConfigPath.
func AppConfigFor(env Environment) AppConfig {
	return AppConfig{
		"production": env.Production,
		"rest": map[string]any{
			"ssl":       env.Rest.SSL,
			"host":      env.Rest.Host,
			"port":      env.Rest.Port,
			"nameSpace": env.Rest.NameSpace,
		},
		"universal": map[string]any{
			"preboot":           env.Universal.Preboot,
			"async":             env.Universal.Async,
			"time":              env.Universal.Time,
			"inlineCriticalCss": env.Universal.InlineCriticalCSS,
		},
		"matomo": map[string]any{
			"hostUrl": env.Matomo.HostURL,
			"siteId":  env.Matomo.SiteID,
		},
		"defaultLanguage": env.DefaultLanguage,
	}
}
