package cmd

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "danmuctl",
	Short: "hikari-danmu control CLI",
	Long:  `danmuctl serves and operates the hikari-danmu aggregation core.`,
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("see `danmuctl serve --help`")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
}

// initConfig sets viper configurations and default values
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	viper.SetEnvPrefix("HIKARI_DANMU")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", ""))
	viper.AutomaticEnv()

	viper.SetDefault("storage.filePath", "./hikari-danmu.db")

	viper.SetDefault("server.port", 8989)

	viper.SetDefault("rateLimit.disabled", false)
	viper.SetDefault("rateLimit.globalLimit", 300)
	viper.SetDefault("rateLimit.globalPeriod", "1h")
	viper.SetDefault("rateLimit.fallbackLimit", 50)
	viper.SetDefault("rateLimit.fallbackPeriod", "1h")
}
