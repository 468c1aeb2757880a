package main

import (
	"fmt"
	"os"

	"github.com/Hubmakerlabs/nostrengine/pkg/config"
	"github.com/Hubmakerlabs/nostrengine/pkg/engine"
	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
	"github.com/urfave/cli/v2"
)

const name = "nengine"

const version = "0.1.0"

var log, chk = slog.New(os.Stderr)

// setup loads the configuration written by the daemon and opens the engine
// for the command.
func setup(cCtx *cli.Context) (err error) {
	if cCtx.Args().First() == "version" {
		return
	}
	cfg := config.GetDefaultConfig()
	if p := cCtx.String("a"); p != "" {
		cfg.Profile = p
	}
	cfg.DataDir = cCtx.String("datadir")
	var path string
	if path, err = cfg.Path(); chk.E(err) {
		return
	}
	if err = cfg.Load(path); err != nil {
		return fmt.Errorf("no configuration at %s, run nostrengine initcfg first: %w", path, err)
	}
	if rs := cCtx.StringSlice("relays"); len(rs) > 0 {
		cfg.Relays = rs
	}
	level := cfg.LogLevel
	if cCtx.Bool("V") {
		level = "debug"
	}
	slog.SetLogLevelName(level)
	var e *engine.Engine
	if e, err = engine.New(cfg); err != nil {
		return
	}
	if err = e.Init(cfg.Relays, nil); err != nil {
		chk.E(e.Close())
		return
	}
	cCtx.App.Metadata["engine"] = e
	return
}

func teardown(cCtx *cli.Context) (err error) {
	if e, ok := cCtx.App.Metadata["engine"].(*engine.Engine); ok {
		return e.Close()
	}
	return
}

func eng(cCtx *cli.Context) *engine.Engine {
	return cCtx.App.Metadata["engine"].(*engine.Engine)
}

func doVersion(cCtx *cli.Context) (err error) {
	fmt.Println(version)
	return nil
}

func idFlag() cli.Flag {
	return &cli.StringFlag{Name: "id", Required: true, Usage: "hex note id"}
}

func jsonFlag() cli.Flag { return &cli.BoolFlag{Name: "json", Usage: "output JSON"} }

func main() {
	app := &cli.App{
		Name:        name,
		Usage:       "a client for the nostrengine store and relays",
		Description: "reads from the local event store, fetching from relays first, and publishes signed events",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "a", Usage: "profile name"},
			&cli.StringFlag{Name: "datadir", Usage: "data directory, overrides profile"},
			&cli.StringSliceFlag{Name: "relays", Usage: "relays to use instead of the configured ones"},
			&cli.BoolFlag{Name: "V", Usage: "verbose"},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:    "timeline",
				Aliases: []string{"tl"},
				Usage:   "show the notes of the people you follow",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "n", Value: 30, Usage: "number of items"},
					&cli.BoolFlag{Name: "offline", Usage: "only read the store"},
					jsonFlag(),
				},
				Action: doTimeline,
			},
			{
				Name:      "post",
				Aliases:   []string{"n"},
				Usage:     "post a new note",
				UsageText: "nengine post [note text]",
				ArgsUsage: "[note text]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "stdin", Usage: "read the note from stdin"},
					&cli.StringSliceFlag{Name: "t", Usage: "hashtags"},
				},
				Action: doPost,
			},
			{
				Name:      "reply",
				Aliases:   []string{"r"},
				Usage:     "reply to a note",
				UsageText: "nengine reply --id [id] [note text]",
				ArgsUsage: "[note text]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "stdin", Usage: "read the reply from stdin"},
					&cli.BoolFlag{Name: "quote", Usage: "quote the note instead"},
					idFlag(),
				},
				Action: doReply,
			},
			{
				Name:      "like",
				Aliases:   []string{"l"},
				Usage:     "react to a note",
				UsageText: "nengine like --id [id]",
				Flags: []cli.Flag{
					idFlag(),
					&cli.StringFlag{Name: "content", Usage: "reaction, + when empty"},
				},
				Action: doLike,
			},
			{
				Name:      "repost",
				Aliases:   []string{"b"},
				Usage:     "repost a note",
				UsageText: "nengine repost --id [id]",
				Flags: []cli.Flag{
					idFlag(),
					&cli.BoolFlag{Name: "undo", Usage: "delete your repost of the note"},
				},
				Action: doRepost,
			},
			{
				Name:      "delete",
				Aliases:   []string{"d"},
				Usage:     "ask relays to delete your events",
				UsageText: "nengine delete --id [id] --id [id]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "id", Required: true, Usage: "hex event ids"},
					&cli.StringFlag{Name: "reason"},
				},
				Action: doDelete,
			},
			{
				Name:  "notify",
				Usage: "show reactions, reposts, zaps and replies to you",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "n", Value: 30, Usage: "number of items"},
					jsonFlag(),
				},
				Action: doNotify,
			},
			{
				Name:      "thread",
				Usage:     "show the thread a note belongs to",
				UsageText: "nengine thread --id [id]",
				Flags: []cli.Flag{
					idFlag(),
					&cli.IntFlag{Name: "depth", Usage: "reply depth to fetch"},
					jsonFlag(),
				},
				Action: doThread,
			},
			{
				Name:  "profile",
				Usage: "show a profile",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "u", Usage: "hex public key, yours when empty"},
					jsonFlag(),
				},
				Action: doProfile,
			},
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "search stored notes or profiles",
				UsageText: "nengine search [words]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "n", Value: 30, Usage: "number of items"},
					&cli.BoolFlag{Name: "profiles", Usage: "search profiles instead of notes"},
					&cli.StringFlag{Name: "tag", Usage: "list notes with this hashtag"},
					jsonFlag(),
				},
				Action: doSearch,
			},
			{
				Name:  "relays",
				Usage: "show or change the relays",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "add", Usage: "relay to add"},
					&cli.StringSliceFlag{Name: "remove", Usage: "relay to remove"},
					&cli.BoolFlag{Name: "read", Value: true, Usage: "read from added relays"},
					&cli.BoolFlag{Name: "write", Value: true, Usage: "write to added relays"},
					&cli.BoolFlag{Name: "save", Usage: "store the resulting user relays in the configuration"},
					jsonFlag(),
				},
				Action: doRelays,
			},
			{
				Name:      "vanish",
				Usage:     "ask relays to delete everything you published",
				UsageText: "nengine vanish [relay urls, or ALL_RELAYS]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason"},
					&cli.BoolFlag{Name: "yes", Usage: "do not ask for confirmation"},
				},
				Action: doVanish,
			},
			{
				Name:   "version",
				Usage:  "show version",
				Action: doVersion,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.E.Ln(err)
		os.Exit(1)
	}
}
