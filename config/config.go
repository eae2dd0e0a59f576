package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"chainbook/domain/orderbook"
	"chainbook/infra/log"
)

const (
	LedgerMemory = "memory"
	LedgerPebble = "pebble"

	EventsNone    = "none"
	EventsKafkaGo = "kafka-go"
	EventsSarama  = "sarama"
)

var (
	DefaultHomeDir   = ".chainbook"
	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName = "config.toml"
	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
)

// Config defines the top level configuration of a chainbook node.
type Config struct {
	BaseConfig `mapstructure:",squash"`

	RPC             *RPCConfig             `mapstructure:"rpc" toml:"rpc"`
	Storage         *StorageConfig         `mapstructure:"storage" toml:"storage"`
	Events          *EventsConfig          `mapstructure:"events" toml:"events"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation" toml:"instrumentation"`
	Markets         []MarketConfig         `mapstructure:"markets" toml:"markets"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		RPC:             DefaultRPCConfig(),
		Storage:         DefaultStorageConfig(),
		Events:          DefaultEventsConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
		Markets:         DefaultMarkets(),
	}
}

// TestConfig keeps everything in memory and publishes nothing.
func TestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Storage.Ledger = LedgerMemory
	cfg.Storage.SnapshotInterval = 0
	cfg.Events.Driver = EventsNone
	cfg.RPC.ListenAddress = "127.0.0.1:0"
	return cfg
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.Storage.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [rpc] section")
	}
	if err := cfg.Storage.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [storage] section")
	}
	if err := cfg.Events.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [events] section")
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [instrumentation] section")
	}
	if len(cfg.Markets) == 0 {
		return errors.New("no [[markets]] configured")
	}
	seen := make(map[string]bool, len(cfg.Markets))
	for i, m := range cfg.Markets {
		if err := m.Market().Validate(); err != nil {
			return errors.Wrapf(err, "error in [[markets]] entry %d", i)
		}
		if seen[m.Name] {
			return errors.Errorf("duplicate market %q", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home" toml:"-"`

	// Output level for logging: debug | info | warn | error
	LogLevel string `mapstructure:"log_level" toml:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format" toml:"log_format"`
}

func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  log.LogLevelInfo,
		LogFormat: log.LogFormatPlain,
	}
}

func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case log.LogFormatPlain, log.LogFormatText, log.LogFormatJSON:
	default:
		return errors.New("unknown log_format (must be 'plain', 'text' or 'json')")
	}
	switch cfg.LogLevel {
	case log.LogLevelDebug, log.LogLevelInfo, log.LogLevelWarn, log.LogLevelError:
	default:
		return errors.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	return nil
}

//-----------------------------------------------------------------------------
// RPCConfig

type RPCConfig struct {
	// TCP address for the gRPC server to listen on
	ListenAddress string `mapstructure:"laddr" toml:"laddr"`
}

func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{ListenAddress: "127.0.0.1:50051"}
}

func (cfg *RPCConfig) ValidateBasic() error {
	if cfg.ListenAddress == "" {
		return errors.New("laddr can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// StorageConfig

type StorageConfig struct {
	RootDir string `mapstructure:"home" toml:"-"`

	// Settlement ledger backend: memory | pebble
	Ledger string `mapstructure:"ledger" toml:"ledger"`

	// Directories, relative to the home directory unless absolute.
	// Each market gets a subdirectory of the journal and ledger paths.
	JournalPath  string `mapstructure:"journal_dir" toml:"journal_dir"`
	LedgerPath   string `mapstructure:"ledger_dir" toml:"ledger_dir"`
	OutboxPath   string `mapstructure:"outbox_dir" toml:"outbox_dir"`
	SnapshotPath string `mapstructure:"snapshot_dir" toml:"snapshot_dir"`

	// fsync every journal append
	SyncWrites bool `mapstructure:"sync_writes" toml:"sync_writes"`

	// Journal segment rotation
	SegmentSize     int64         `mapstructure:"segment_size" toml:"segment_size"`
	SegmentDuration time.Duration `mapstructure:"segment_duration" toml:"segment_duration"`

	// How often books are snapshotted and the journal truncated. 0 disables.
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval" toml:"snapshot_interval"`
}

func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		Ledger:           LedgerPebble,
		JournalPath:      filepath.Join(defaultDataDir, "journal"),
		LedgerPath:       filepath.Join(defaultDataDir, "ledger"),
		OutboxPath:       filepath.Join(defaultDataDir, "outbox"),
		SnapshotPath:     filepath.Join(defaultDataDir, "snapshots"),
		SyncWrites:       true,
		SegmentSize:      64 << 20,
		SegmentDuration:  time.Hour,
		SnapshotInterval: time.Minute,
	}
}

func (cfg *StorageConfig) JournalDir(market string) string {
	return filepath.Join(rootify(cfg.JournalPath, cfg.RootDir), market)
}

func (cfg *StorageConfig) LedgerDir() string { return rootify(cfg.LedgerPath, cfg.RootDir) }

func (cfg *StorageConfig) OutboxDir() string { return rootify(cfg.OutboxPath, cfg.RootDir) }

func (cfg *StorageConfig) SnapshotDir() string { return rootify(cfg.SnapshotPath, cfg.RootDir) }

func (cfg *StorageConfig) ValidateBasic() error {
	switch cfg.Ledger {
	case LedgerMemory, LedgerPebble:
	default:
		return errors.Errorf("unknown ledger %q (must be %q or %q)", cfg.Ledger, LedgerMemory, LedgerPebble)
	}
	if cfg.SegmentSize < 0 {
		return errors.New("segment_size can't be negative")
	}
	if cfg.SegmentDuration < 0 {
		return errors.New("segment_duration can't be negative")
	}
	if cfg.SnapshotInterval < 0 {
		return errors.New("snapshot_interval can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// EventsConfig

// EventsConfig selects where settlement events are published.
type EventsConfig struct {
	// none | kafka-go | sarama
	Driver string `mapstructure:"driver" toml:"driver"`

	Brokers  []string `mapstructure:"brokers" toml:"brokers"`
	Topic    string   `mapstructure:"topic" toml:"topic"`
	ClientID string   `mapstructure:"client_id" toml:"client_id"`

	Interval   time.Duration `mapstructure:"interval" toml:"interval"`
	BatchSize  int           `mapstructure:"batch_size" toml:"batch_size"`
	MaxRetries uint32        `mapstructure:"max_retries" toml:"max_retries"`
}

func DefaultEventsConfig() *EventsConfig {
	return &EventsConfig{
		Driver:     EventsNone,
		Brokers:    []string{"localhost:9092"},
		Topic:      "chainbook.events",
		ClientID:   "chainbook",
		Interval:   250 * time.Millisecond,
		BatchSize:  256,
		MaxRetries: 10,
	}
}

func (cfg *EventsConfig) ValidateBasic() error {
	switch cfg.Driver {
	case EventsNone:
		return nil
	case EventsKafkaGo, EventsSarama:
	default:
		return errors.Errorf("unknown driver %q", cfg.Driver)
	}
	if len(cfg.Brokers) == 0 {
		return errors.New("brokers can't be empty")
	}
	if cfg.Topic == "" {
		return errors.New("topic can't be empty")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus" toml:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" toml:"prometheus_listen_addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace" toml:"namespace"`
}

func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "chainbook",
	}
}

func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus_listen_addr can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// MarketConfig

// MarketConfig declares one trading pair.
type MarketConfig struct {
	Name  string `mapstructure:"name" toml:"name"`
	Base  string `mapstructure:"base" toml:"base"`
	Quote string `mapstructure:"quote" toml:"quote"`
	Scale int32  `mapstructure:"scale" toml:"scale"`
}

func DefaultMarkets() []MarketConfig {
	return []MarketConfig{{Name: "XRD-USD", Base: "XRD", Quote: "USD", Scale: orderbook.DefaultScale}}
}

func (m MarketConfig) Market() orderbook.Market {
	return orderbook.Market{Name: m.Name, Base: m.Base, Quote: m.Quote, Scale: m.Scale}
}

func (m MarketConfig) String() string {
	return fmt.Sprintf("%s (%s/%s, scale %d)", m.Name, m.Base, m.Quote, m.Scale)
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
