package commands

import (
	"encoding/json"
	"io"

	"github.com/contact-dispatch/internal/app"
	"github.com/contact-dispatch/internal/config"
	"github.com/contact-dispatch/internal/logger"
	"github.com/contact-dispatch/internal/provider"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type state struct {
	configPath string
	cfg        *config.Config
	container  *provider.Container
}

// Execute 运行命令行入口
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	st := &state{}
	root := &cobra.Command{
		Use:           "importctl",
		Short:         "Operate the contact number pool and device imports",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.init()
		},
	}
	root.PersistentFlags().StringVarP(&st.configPath, "config", "c", "", "config file (default search ./config.yml, ../config.yml, ./etc/config.yml)")

	root.AddCommand(
		importNumbersCmd(st),
		statsCmd(st),
		allocateCmd(st),
		executeCmd(st),
		processPendingCmd(st),
		revertCmd(st),
		tokenCmd(st),
	)
	return root
}

func (st *state) init() error {
	v := viper.New()
	if st.configPath != "" {
		v.SetConfigFile(st.configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../")
		v.AddConfigPath("./etc")
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return err
	}
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	if err := app.InitDatabase(cfg); err != nil {
		return err
	}
	st.cfg = cfg
	st.container = provider.NewContainer(cfg)
	return nil
}

func printJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
