package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lsanches/bico/internal/daemon"
	"github.com/lsanches/bico/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	credentialFlag := flag.String("credential", "", "bearer token to store for this profile")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProfileName: profileName,
			Credential:  *credentialFlag,
		}),
	)

	app.Run()
}
