package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel               = "debug"
	DefaultRole                   = "FullNode"
	DefaultBindAddr               = "127.0.0.1:7000"
	DefaultPropagationAddr        = "127.0.0.1:7001"
	DefaultRealm                  = "cotinode"
	DefaultTCPTimeout             = 1000 * time.Millisecond
	DefaultCacheSize              = 10000
	DefaultMaxPool                = 2
	DefaultStore                  = false
	DefaultPropagationRetries     = 5
	DefaultPropagationCheckPeriod = 60 * time.Second
	DefaultVoteThreshold          = 1
)

// Config contains all the configuration properties of a node.
type Config struct {
	// DataDir is the top-level directory containing the node configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Role is the node type this process runs as (FullNode, DspNode,
	// TrustScoreNode, ZeroSpendServer, NodeManager, FinancialServer,
	// StorageNode).
	Role string `mapstructure:"role"`

	// BindAddr is the local address:port of the Receiver, where peers send
	// point-to-point messages.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the Receiver address that we advertise
	// to other nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// PropagationAddr is the local address:port of the Publisher. Subscribers
	// connect to it with websockets.
	PropagationAddr string `mapstructure:"propagation-listen"`

	// NodeManagerAddr is the Receiver address of the node manager, where this
	// node registers itself. Required for every role but NodeManager.
	NodeManagerAddr string `mapstructure:"node-manager"`

	// NodeManagerPropagationAddr is the Publisher address of the node
	// manager, from which membership updates are received.
	NodeManagerPropagationAddr string `mapstructure:"node-manager-propagation"`

	// Realm is the WAMP realm of the propagation fabric.
	Realm string `mapstructure:"realm"`

	// TCPTimeout is the timeout of point-to-point connections and of WAMP
	// calls.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// MaxPool controls how many connections are pooled per Sender target.
	MaxPool int `mapstructure:"max-pool"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of items in in-memory caches.
	CacheSize int `mapstructure:"cache-size"`

	// PropagationRetries is the number of times an unconfirmed transaction is
	// re-sent before it is abandoned.
	PropagationRetries int `mapstructure:"propagation-retries"`

	// PropagationCheckPeriod is the interval between two sweeps of the
	// unconfirmed transactions. A transaction is re-sent once it is older than
	// one period.
	PropagationCheckPeriod time.Duration `mapstructure:"propagation-check-period"`

	// VoteThreshold is the number of positive DSP votes the zero-spend server
	// waits for before confirming a transaction.
	VoteThreshold int `mapstructure:"vote-threshold"`

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:                DefaultDataDir(),
		LogLevel:               DefaultLogLevel,
		Role:                   DefaultRole,
		BindAddr:               DefaultBindAddr,
		PropagationAddr:        DefaultPropagationAddr,
		Realm:                  DefaultRealm,
		TCPTimeout:             DefaultTCPTimeout,
		CacheSize:              DefaultCacheSize,
		MaxPool:                DefaultMaxPool,
		Store:                  DefaultStore,
		DatabaseDir:            DefaultDatabaseDir(),
		PropagationRetries:     DefaultPropagationRetries,
		PropagationCheckPeriod: DefaultPropagationCheckPeriod,
		VoteThreshold:          DefaultVoteThreshold,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// NodeType parses Role.
func (c *Config) NodeType() (data.NodeType, error) {
	return data.ParseNodeType(c.Role)
}

// Validate reports the first configuration error that would prevent the node
// from starting.
func (c *Config) Validate() error {
	nodeType, err := c.NodeType()
	if err != nil {
		return err
	}
	if nodeType != data.NodeManager {
		if c.NodeManagerAddr == "" {
			return errors.New("node-manager address is required")
		}
		if c.NodeManagerPropagationAddr == "" {
			return errors.New("node-manager-propagation address is required")
		}
	}
	if c.PropagationRetries < 0 {
		return fmt.Errorf("propagation-retries must not be negative, got %d", c.PropagationRetries)
	}
	if c.PropagationCheckPeriod <= 0 {
		return fmt.Errorf("propagation-check-period must be positive, got %v", c.PropagationCheckPeriod)
	}
	if c.VoteThreshold < 1 {
		return fmt.Errorf("vote-threshold must be at least 1, got %d", c.VoteThreshold)
	}
	return nil
}

// Logger returns a formatted logrus Entry, with prefix set to the role.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", c.Role)
}

// AddLogHook installs hook on the logger returned by Logger.
func (c *Config) AddLogHook(hook logrus.Hook) {
	c.Logger()
	c.logger.Hooks.Add(hook)
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Cotinode")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Cotinode")
		} else {
			return filepath.Join(home, ".cotinode")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
