package cmd

// version is set at build time with -ldflags "-X mcpchat/cmd.version=...".
var version = "dev"

func init() {
	rootCmd.Version = version
}
