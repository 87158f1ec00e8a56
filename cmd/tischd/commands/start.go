// Copyright © 2025 Tischnet contributors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tischnet/tischd/pkg/bots"
	"github.com/tischnet/tischd/pkg/game"
	"github.com/tischnet/tischd/pkg/relay"
	"github.com/tischnet/tischd/pkg/rooms"
	"github.com/tischnet/tischd/pkg/store"
	"github.com/tischnet/tischd/pkg/trigger"
)

var (
	log        *logrus.Logger
	disableTLS bool
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the tischd server",
	Run:   runServer,
}

func init() {
	RootCmd.AddCommand(startCmd)

	startCmd.Flags().StringP("bind", "b", "127.0.0.1:8737", "Bind the server to host:port. Leave host empty to bind to all interfaces.")
	viper.BindPFlag("server.bind", startCmd.Flags().Lookup("bind"))
	startCmd.Flags().IntP("time-between-pings", "t", 30, "How often pings should be sent in seconds (0 disables)")
	viper.BindPFlag("server.timeBetweenPings", startCmd.Flags().Lookup("time-between-pings"))
	startCmd.Flags().IntP("pings-until-timeout", "p", 2, "Number of pings that can pass before inactive clients are dropped (0 disables timeout)")
	viper.BindPFlag("server.pingsUntilTimeout", startCmd.Flags().Lookup("pings-until-timeout"))
	startCmd.Flags().BoolVarP(&disableTLS, "disable-tls", "d", false, "Overrides config option to enable TLS")

	viper.SetDefault("server.statsPassword", "")
	viper.SetDefault("tls.useTls", true)
	viper.SetDefault("store.path", "$CONFDIR/tischd.db")
	viper.SetDefault("relay.triggerUrl", "http://127.0.0.1:8737")
	viper.SetDefault("bots.kickoffDelay", 1)
}

func runServer(cmd *cobra.Command, args []string) {
	log = logrus.New()
	log.Out = os.Stderr
	log.Formatter = new(logrus.TextFormatter)
	log.Level = logrus.DebugLevel

	st, err := openStore()
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	registry := relay.NewRegistry(log)
	srv := relay.NewServer(registry, log)
	srv.TimeBetweenPings = viper.GetDuration("server.timeBetweenPings") * time.Second
	srv.PingsUntilTimeout = viper.GetInt("server.pingsUntilTimeout")
	srv.StatsPassword = viper.GetString("server.statsPassword")

	pub := trigger.New(viper.GetString("relay.triggerUrl"), 0)
	defer pub.Close()

	games := game.NewService(st, pub, log)
	sched := bots.NewScheduler(st, games.KickBots, log)
	if err := sched.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer sched.Stop()

	botDelay := viper.GetDuration("bots.kickoffDelay") * time.Second
	manager := rooms.NewManager(st, pub, games, sched, botDelay, log)

	router := srv.Routes()
	rooms.NewHandler(manager, log).Register(router)

	bindAddr := viper.GetString("server.bind")
	certFile := os.ExpandEnv(viper.GetString("tls.certFile"))
	keyFile := os.ExpandEnv(viper.GetString("tls.keyFile"))
	useTLS := viper.GetBool("tls.useTls")

	log.Info("Starting tischd")
	if useTLS && !disableTLS {
		log.Fatal(srv.ListenAndServeTLS(bindAddr, router, certFile, keyFile))
	} else {
		log.Fatal(srv.ListenAndServe(bindAddr, router))
	}
}

func openStore() (store.Store, error) {
	path := os.ExpandEnv(viper.GetString("store.path"))
	if path == "" {
		log.Warn("No store path configured; rooms will not survive restarts")
		return store.NewMemory(), nil
	}
	log.WithField("path", path).Info("Opening store")
	return store.OpenSQLite(path)
}
