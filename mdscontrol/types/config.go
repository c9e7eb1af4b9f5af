// Package types holds the configuration model shared by the engine and
// the mdsauth CLI.
package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LDAPConfig carries the settings for the LDAP identity-remap backend.
type LDAPConfig struct {
	URI        string
	BindDN     string
	BindPW     string
	SecretFile string
	BaseDN     string
	GroupDN    string
	IDAttr     string
	GroupAttr  string
	MemberAttr string
}

// IdmapConfig configures the identity-remap backend chain.
type IdmapConfig struct {
	// Backend is the comma-separated, ordered backend list, e.g.
	// "ldap" or "ldap, key".
	Backend string
	LDAP    LDAPConfig
}

// Backends returns the configured backend names in order, with
// whitespace stripped and empty items dropped.
func (c IdmapConfig) Backends() []string {
	var out []string
	for item := range strings.SplitSeq(c.Backend, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

type Config struct {
	Idmap IdmapConfig
}

// LoadConfig reads configuration from the given file, or from the
// default search path when path is empty. All keys are optional; the
// zero configuration disables identity remapping.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		v.SetConfigName("mdsauth")
		v.AddConfigPath("/etc/mdsauth/")
		v.AddConfigPath("$HOME/.mdsauth")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("mdsauth")
	v.AutomaticEnv()

	v.SetDefault("mds_idmap_backend", "")
	v.SetDefault("mds_idmap_ldap_uri", "")
	v.SetDefault("mds_idmap_ldap_binddn", "")
	v.SetDefault("mds_idmap_ldap_bindpw", "")
	v.SetDefault("mds_idmap_ldap_secret", "")
	v.SetDefault("mds_idmap_ldap_basedn", "")
	v.SetDefault("mds_idmap_ldap_groupdn", "")
	v.SetDefault("mds_idmap_ldap_idattr", "uid")
	v.SetDefault("mds_idmap_ldap_groupattr", "dn")
	v.SetDefault("mds_idmap_ldap_memberattr", "member")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return &Config{
		Idmap: IdmapConfig{
			Backend: v.GetString("mds_idmap_backend"),
			LDAP: LDAPConfig{
				URI:        v.GetString("mds_idmap_ldap_uri"),
				BindDN:     v.GetString("mds_idmap_ldap_binddn"),
				BindPW:     v.GetString("mds_idmap_ldap_bindpw"),
				SecretFile: v.GetString("mds_idmap_ldap_secret"),
				BaseDN:     v.GetString("mds_idmap_ldap_basedn"),
				GroupDN:    v.GetString("mds_idmap_ldap_groupdn"),
				IDAttr:     v.GetString("mds_idmap_ldap_idattr"),
				GroupAttr:  v.GetString("mds_idmap_ldap_groupattr"),
				MemberAttr: v.GetString("mds_idmap_ldap_memberattr"),
			},
		},
	}, nil
}
