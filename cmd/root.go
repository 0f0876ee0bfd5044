// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Global flags
	configFile string
	logLevel   string
	logFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nfscap",
	Short: "nfscap - tcpdump trace analyzer for NFS over RPC",
	Long: `nfscap reads tcpdump trace files, reassembles TCP streams into RPC
records, correlates calls with replies and decodes NFSv4 compounds.

Packets can be dumped frame by frame or searched with a match expression
language over the decoded layers, e.g.:

  nfscap find trace.cap "RPC.xid == 0x1000 and NFS.resop == 18"
  nfscap dump trace.cap.gz`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (default $HOME/.nfscap.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning",
		"log level (debug, info, warning, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"write logs to this file with rotation instead of stderr")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(findCmd)
}

func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".nfscap")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("NFSCAP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, flags and defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			exitWithError("reading config file", err)
		}
	}
}

// newLogger builds the process logger from config: level from log.level,
// output rotated through lumberjack when log.file is set.
func newLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = logrus.WarnLevel
	}
	log.SetLevel(level)

	if file := viper.GetString("log.file"); file != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    viper.GetInt("log.max_size_mb"),
			MaxBackups: viper.GetInt("log.max_backups"),
			MaxAge:     viper.GetInt("log.max_age_days"),
			Compress:   true,
		})
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
