package main

import (
	"fmt"

	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
	"github.com/gookit/color"
	"github.com/urfave/cli/v2"
)

func doRelays(cCtx *cli.Context) (err error) {
	e, c := eng(cCtx), cCtx.Context
	for _, u := range cCtx.StringSlice("add") {
		var added bool
		if added, err = e.AddRelay(c, u, cCtx.Bool("read"), cCtx.Bool("write")); err != nil {
			return
		}
		if !added {
			log.W.Ln(u, "is already in use")
		}
	}
	for _, u := range cCtx.StringSlice("remove") {
		var removed bool
		if removed, err = e.RemoveRelay(u); err != nil {
			return
		}
		if !removed {
			log.W.Ln(u, "is not in use")
		}
	}
	if cCtx.Bool("save") {
		cfg := e.Config()
		cfg.Relays = e.UserRelays()
		var path string
		if path, err = cfg.Path(); err != nil {
			return
		}
		if err = cfg.Save(path); err != nil {
			return
		}
		log.I.Ln("saved", len(cfg.Relays), "relays to", path)
	}
	if _, err = e.Connect(c); chk.D(err) {
		err = nil
	}
	var st relaypool.Summary
	if st, err = e.RelayStatus(); err != nil {
		return
	}
	if cCtx.Bool("json") {
		return printJSON(st)
	}
	for _, r := range st.Relays {
		mode := ""
		if r.Read {
			mode += "r"
		}
		if r.Write {
			mode += "w"
		}
		if r.IsDiscovery {
			mode += "d"
		}
		if r.Status == relaypool.Connected.String() {
			color.Green.Printf("%-12s", r.Status)
		} else {
			color.Yellow.Printf("%-12s", r.Status)
		}
		fmt.Printf(" %-3s %s\n", mode, r.URL)
	}
	fmt.Printf("%d of %d relays connected\n", st.ConnectedRelays, st.TotalRelays)
	return
}
