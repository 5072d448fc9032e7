package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
)

const defaultRootTxnCache = 14 * 1024 * 1024 // 14 MiB, spec.md §4.3.4 / §6.1

// NodeConfig is the per-daemon configuration of spec.md §6.1 ("Node
// (per-daemon)").
type NodeConfig struct {
	NetworkPassword            string
	NodeDirectory              string
	LogDirectory               string
	LogLevel                   string
	RootServerTransactionCache int64
}

// LoadNodeConfig validates and converts a parsed File into a NodeConfig.
func LoadNodeConfig(f *File) (*NodeConfig, error) {
	pw, err := f.Require("network_password")
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, mckoierr.New(mckoierr.KindConfig, "network_password must be at least 1 byte")
	}
	dir, err := f.Require("node_directory")
	if err != nil {
		return nil, err
	}

	cacheRaw := f.GetDefault("root_server_transaction_cache", "default")
	var cacheBytes int64
	if cacheRaw == "default" {
		cacheBytes = defaultRootTxnCache
	} else {
		cacheBytes, err = ParseByteSize(cacheRaw)
		if err != nil {
			return nil, err
		}
	}

	return &NodeConfig{
		NetworkPassword:            pw,
		NodeDirectory:              dir,
		LogDirectory:               f.GetDefault("log_directory", dir+"/logs"),
		LogLevel:                   f.GetDefault("log_level", "info"),
		RootServerTransactionCache: cacheBytes,
	}, nil
}

// NetworkConfig is the cluster-wide configuration of spec.md §6.1
// ("Network (cluster-wide)").
type NetworkConfig struct {
	WhitelistIPs       []string
	WhitelistDisabled  bool
	NodeList           []string
	ConfigcheckTimeout time.Duration
}

// LoadNetworkConfig validates and converts a parsed File into a
// NetworkConfig.
func LoadNetworkConfig(f *File) (*NetworkConfig, error) {
	ips, disabled, err := ParseWhitelist(f.GetDefault("connect_whitelist", "*"))
	if err != nil {
		return nil, err
	}
	nodeList, err := ParseNodeList(f.GetDefault("network_nodelist", ""))
	if err != nil {
		return nil, err
	}
	timeout := 120 * time.Second
	if raw, ok := f.Get("configcheck_timeout"); ok {
		d, err := parseSeconds(raw)
		if err != nil {
			return nil, err
		}
		timeout = d
	}
	return &NetworkConfig{
		WhitelistIPs:       ips,
		WhitelistDisabled:  disabled,
		NodeList:           nodeList,
		ConfigcheckTimeout: timeout,
	}, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, mckoierr.Wrap(mckoierr.KindConfig, "invalid configcheck_timeout", err)
	}
	return time.Duration(n) * time.Second, nil
}

// ClientConfig is the client-side configuration of spec.md §6.1
// ("Client").
type ClientConfig struct {
	ManagerAddresses    []string
	NetworkPassword     string
	TransactionCacheSize int64
	GlobalCacheSize     int64
}

// LoadClientConfig validates and converts a parsed File into a
// ClientConfig.
func LoadClientConfig(f *File) (*ClientConfig, error) {
	addrs, err := ParseNodeList(f.GetDefault("manager_address", ""))
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, mckoierr.New(mckoierr.KindConfig, "manager_address must list at least one host:port")
	}
	pw, err := f.Require("network_password")
	if err != nil {
		return nil, err
	}
	txnCache, err := ParseByteSize(f.GetDefault("transaction_cache_size", "1MB"))
	if err != nil {
		return nil, err
	}
	globalCache, err := ParseByteSize(f.GetDefault("global_cache_size", "16MB"))
	if err != nil {
		return nil, err
	}
	return &ClientConfig{
		ManagerAddresses:     addrs,
		NetworkPassword:      pw,
		TransactionCacheSize: txnCache,
		GlobalCacheSize:      globalCache,
	}, nil
}
