package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/logger"
	"gopkg.in/urfave/cli.v1"

	"verilotto/internal/auth"
	"verilotto/internal/config"
	"verilotto/internal/provision"
)

type tokenEnv struct {
	Secret string `env:"LOTTERY_JWT_SECRET,required,notEmpty"`
	Issuer string `env:"LOTTERY_JWT_ISSUER" envDefault:"verilotto"`
}

func main() {
	defer logger.Init("provision", false, false, io.Discard).Close()

	app := cli.NewApp()
	app.Name = "provision"
	app.Usage = "set up a lottery engine instance"
	app.Commands = []cli.Command{
		{
			Name:  "init",
			Usage: "write the deployment manifest and display configuration",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "manifest", Value: "deployment.toml", EnvVar: "LOTTERY_DEPLOYMENT_FILE", Usage: "manifest path"},
				cli.StringFlag{Name: "admin", Usage: "admin address (fixed for the lifetime of the instance)"},
				cli.StringFlag{Name: "address", Value: "http://localhost:8080", Usage: "public address of the engine"},
				cli.StringFlag{Name: "scheme", Value: "keccak256", EnvVar: "LOTTERY_COMMITMENT_SCHEME", Usage: "commitment scheme"},
				cli.StringFlag{Name: "display-dir", Usage: "directory receiving config.json and interface.json"},
				cli.StringFlag{Name: "network", Value: "local", Usage: "network name published to the display layer"},
			},
			Action: runInit,
		},
		{
			Name:  "token",
			Usage: "print a bearer token (reads LOTTERY_JWT_SECRET)",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address", Usage: "identity the token is issued to"},
				cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
			},
			Action: runToken,
		},
		{
			Name:  "commit",
			Usage: "print a commitment to a winning number",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "number", Usage: "winning number in [1000, 9999]"},
				cli.StringFlag{Name: "salt", Usage: "hex salt; random when omitted"},
				cli.StringFlag{Name: "scheme", Value: "keccak256", EnvVar: "LOTTERY_COMMITMENT_SCHEME", Usage: "commitment scheme"},
			},
			Action: runCommit,
		},
	}

	if err := app.Run(os.Args); err != nil {
		config.Exitf("provision: %v", err)
	}
}

func runInit(c *cli.Context) error {
	if c.String("admin") == "" {
		return fmt.Errorf("--admin is required")
	}
	_, err := provision.Init(provision.InitOptions{
		ManifestPath:  c.String("manifest"),
		Admin:         c.String("admin"),
		PublicAddress: c.String("address"),
		Scheme:        c.String("scheme"),
		DisplayDir:    c.String("display-dir"),
		Network:       c.String("network"),
	}, os.Stdout)
	return err
}

func runToken(c *cli.Context) error {
	var env tokenEnv
	if err := config.ParseEnv(&env); err != nil {
		return err
	}
	tokens, err := auth.NewTokens(env.Secret, env.Issuer)
	if err != nil {
		return err
	}
	return provision.Token(tokens, c.String("address"), c.Duration("ttl"), os.Stdout)
}

func runCommit(c *cli.Context) error {
	return provision.Commit(c.String("scheme"), c.Int("number"), c.String("salt"), os.Stdout)
}
