package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/cotinet/cotinode/src/node"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNode(cmd *cobra.Command, args []string) error {
	n := node.NewNode(&_config.Node)

	if err := n.Init(); err != nil {
		_config.Node.Logger().Error("Cannot initialize node:", err)
		return err
	}

	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigintCh
		_config.Node.Logger().Info("Interrupt received, shutting down")
		n.Shutdown()
	}()

	n.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Node.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Node.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file-prefix", _config.LogFilePrefix, "Also write logs to <prefix>_info.log and <prefix>_debug.log")
	cmd.Flags().StringP("role", "r", _config.Node.Role, "FullNode, DspNode, TrustScoreNode, ZeroSpendServer, NodeManager, FinancialServer, StorageNode")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Node.BindAddr, "Listen IP:Port of the receiver")
	cmd.Flags().StringP("advertise", "a", _config.Node.AdvertiseAddr, "Advertise IP:Port of the receiver")
	cmd.Flags().StringP("propagation-listen", "p", _config.Node.PropagationAddr, "Listen IP:Port of the publisher")
	cmd.Flags().String("node-manager", _config.Node.NodeManagerAddr, "Receiver IP:Port of the node manager")
	cmd.Flags().String("node-manager-propagation", _config.Node.NodeManagerPropagationAddr, "Publisher IP:Port of the node manager")
	cmd.Flags().String("realm", _config.Node.Realm, "WAMP realm of the propagation network")
	cmd.Flags().DurationP("timeout", "t", _config.Node.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.Node.MaxPool, "Connection pool size max")

	// Store
	cmd.Flags().Bool("store", _config.Node.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Node.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.Node.CacheSize, "Number of items in LRU caches")

	// Propagation tracking
	cmd.Flags().Int("propagation-retries", _config.Node.PropagationRetries, "Number of re-sends of an unconfirmed transaction")
	cmd.Flags().Duration("propagation-check-period", _config.Node.PropagationCheckPeriod, "Time between two sweeps of unconfirmed transactions")

	// Consensus
	cmd.Flags().Int("vote-threshold", _config.Node.VoteThreshold, "Number of DSP votes needed to confirm a transaction")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Node.SetDataDir(_config.Node.DataDir)

	if _config.LogFilePrefix != "" {
		_config.Node.AddLogHook(newFileHook(_config.LogFilePrefix))
	}

	logFields := logrus.Fields{
		"node.DataDir":                    _config.Node.DataDir,
		"node.LogLevel":                   _config.Node.LogLevel,
		"node.Role":                       _config.Node.Role,
		"node.BindAddr":                   _config.Node.BindAddr,
		"node.AdvertiseAddr":              _config.Node.AdvertiseAddr,
		"node.PropagationAddr":            _config.Node.PropagationAddr,
		"node.NodeManagerAddr":            _config.Node.NodeManagerAddr,
		"node.NodeManagerPropagationAddr": _config.Node.NodeManagerPropagationAddr,
		"node.Realm":                      _config.Node.Realm,
		"node.TCPTimeout":                 _config.Node.TCPTimeout,
		"node.MaxPool":                    _config.Node.MaxPool,
		"node.Store":                      _config.Node.Store,
		"node.CacheSize":                  _config.Node.CacheSize,
		"node.PropagationRetries":         _config.Node.PropagationRetries,
		"node.PropagationCheckPeriod":     _config.Node.PropagationCheckPeriod,
		"node.VoteThreshold":              _config.Node.VoteThreshold,
		"LogFilePrefix":                   _config.LogFilePrefix,
	}

	if _config.Node.Store {
		logFields["node.DatabaseDir"] = _config.Node.DatabaseDir
	}

	_config.Node.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/cotinode.toml (.json, .yaml also work)
	viper.SetConfigName("cotinode")           // name of config file (without extension)
	viper.AddConfigPath(_config.Node.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Node.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Node.Logger().Debugf("No config file found in: %s", _config.Node.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// newFileHook sends info and debug entries to files next to the terminal
// output.
func newFileHook(prefix string) logrus.Hook {
	pathMap := lfshook.PathMap{
		logrus.InfoLevel:  prefix + "_info.log",
		logrus.DebugLevel: prefix + "_debug.log",
	}

	return lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	)
}
