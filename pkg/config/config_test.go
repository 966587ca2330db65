package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aojea/netsec-controller/pkg/networkpolicy"
)

const validConfig = `
networks: [net-b, net-a]
keystone:
  username: admin
  password: secret
  project_name: admin
  auth_url: http://keystone:5000
network:
  net-a:
    securitygroups: [sg-web, sg-ssh]
    exempt: [port-1]
    owners: ["compute:nova", "compute:None"]
    delete_others: false
  net-b:
    securitygroups: [sg-default]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netsec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Interval)
	assert.Equal(t, time.Minute, cfg.IntervalDuration())
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 1, cfg.UpdateBurst)
	assert.Zero(t, cfg.UpdateQPS)
	assert.Empty(t, cfg.MetricsAddress)
	assert.Equal(t, "default", cfg.Keystone.UserDomainName)
	assert.Equal(t, "default", cfg.Keystone.ProjectDomainName)
	assert.Equal(t, "public", cfg.Keystone.Interface)
}

func TestPolicies(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	policies := cfg.Policies()
	require.Len(t, policies, 2)

	b := policies[0]
	assert.Equal(t, "net-b", b.NetworkID)
	assert.Equal(t, networkpolicy.Replace, b.Mode)
	assert.Equal(t, []string{"sg-default"}, b.DesiredGroups)
	assert.True(t, b.Owners.Has(networkpolicy.DefaultOwner))
	assert.Equal(t, 0, b.Exempt.Len())

	a := policies[1]
	assert.Equal(t, "net-a", a.NetworkID)
	assert.Equal(t, networkpolicy.Append, a.Mode)
	assert.Equal(t, []string{"sg-web", "sg-ssh"}, a.DesiredGroups)
	assert.True(t, a.Exempt.Has("port-1"))
	assert.True(t, a.Owners.HasAll("compute:nova", "compute:None"))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "no networks",
			config:  "keystone: {username: a, password: b, project_name: c, auth_url: 'http://k'}\n",
			wantErr: "Config.Networks",
		},
		{
			name: "missing network section",
			config: `
networks: [net-a]
keystone: {username: a, password: b, project_name: c, auth_url: "http://k"}
`,
			wantErr: `no network section for monitored network "net-a"`,
		},
		{
			name: "empty security groups",
			config: `
networks: [net-a]
keystone: {username: a, password: b, project_name: c, auth_url: "http://k"}
network:
  net-a: {securitygroups: []}
`,
			wantErr: "SecurityGroups",
		},
		{
			name: "missing password",
			config: `
networks: [net-a]
keystone: {username: a, project_name: c, auth_url: "http://k"}
network:
  net-a: {securitygroups: [sg]}
`,
			wantErr: "Config.Keystone.Password",
		},
		{
			name: "negative interval",
			config: `
networks: [net-a]
interval: -5
keystone: {username: a, password: b, project_name: c, auth_url: "http://k"}
network:
  net-a: {securitygroups: [sg]}
`,
			wantErr: "Config.Interval",
		},
		{
			name: "unknown key",
			config: `
networks: [net-a]
intervall: 5
`,
			wantErr: "parse config",
		},
		{
			name: "duplicated network",
			config: `
networks: [net-a, net-a]
keystone: {username: a, password: b, project_name: c, auth_url: "http://k"}
network:
  net-a: {securitygroups: [sg]}
`,
			wantErr: "Config.Networks",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.config))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
