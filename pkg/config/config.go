// Package config is the engine configuration, parsed from the command line
// with go-arg and persisted as JSON in the data directory.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
	"golang.org/x/exp/slices"
)

var log, chk = slog.New(os.Stderr)

// DiscoveryRelays are queried for relay lists and profiles but never written
// to unless they are also configured as user relays.
var DiscoveryRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.primal.net",
	"wss://vitor.nostr1.com",
}

type InitCfg struct{}
type Stats struct{}
type Wipe struct{}

type Fetch struct {
	Filter  string        `arg:"positional,required" help:"filter as JSON, eg {\"kinds\":[1],\"limit\":20}"`
	Timeout time.Duration `arg:"-t,--timeout" help:"how long to wait for relays"`
}

type Sync struct {
	Filter    string `arg:"positional,required" help:"filter as JSON selecting the events to reconcile"`
	Direction string `arg:"-D,--direction" default:"down" help:"down, up or both"`
}

type Discover struct {
	Authors []string `arg:"positional" help:"hex public keys whose outbox relays to add (defaults to the follow list of the configured key)"`
}

type Thread struct {
	ID    string `arg:"positional,required" help:"hex id of any note in the thread"`
	Depth int    `arg:"-d,--depth" help:"reply depth to fetch"`
}

type Cleanup struct {
	Days int `arg:"positional" help:"keep notes, reposts, reactions and zaps from this many days"`
}

type Config struct {
	InitCfgCmd  *InitCfg  `arg:"subcommand:initcfg" json:"-" help:"write the configuration file from the given arguments"`
	FetchCmd    *Fetch    `arg:"subcommand:fetch" json:"-" help:"fetch events from relays and store them"`
	SyncCmd     *Sync     `arg:"subcommand:sync" json:"-" help:"reconcile the local store with relays using negentropy"`
	DiscoverCmd *Discover `arg:"subcommand:discover" json:"-" help:"discover and connect outbox relays of authors"`
	ThreadCmd   *Thread   `arg:"subcommand:thread" json:"-" help:"resolve a thread root, fetch its replies and print the tree"`
	StatsCmd    *Stats    `arg:"subcommand:stats" json:"-" help:"print event store statistics"`
	WipeCmd     *Wipe     `arg:"subcommand:wipe" json:"-" help:"empty the local event store"`
	CleanupCmd  *Cleanup  `arg:"subcommand:cleanup" json:"-" help:"delete old notes and interactions from the local store"`

	Profile  string   `arg:"-p,--profile" json:"-" help:"profile name, the data directory is ~/.<profile>"`
	DataDir  string   `arg:"--datadir" json:"-" help:"data directory, overrides profile"`
	Relays   []string `arg:"-r,--relay,separate" json:"relays" help:"relays to read from and write to"`
	Discover []string `arg:"--discovery,separate" json:"discovery_relays" help:"relays only used for discovery"`
	SecKey   string   `arg:"-s,--seckey" json:"seckey,omitempty" help:"hex secret key used to sign events"`
	LogLevel string   `arg:"--loglevel" json:"log_level" help:"set log level [off,fatal,error,warn,info,debug,trace] (can also use GODEBUG environment variable)"`
	// FilterReplies removes replies from feed listings, reposts are kept.
	FilterReplies bool `arg:"--filterreplies" json:"filter_replies" help:"hide replies in feeds"`
	// StoreCapacities is the descending ladder of badger cache sizes in
	// megabytes tried when opening the store.
	StoreCapacities []int64 `arg:"--capacity,separate" json:"store_capacities" help:"badger cache sizes in MB to try when opening the store, largest first"`

	FetchTimeout   time.Duration `arg:"--fetchtimeout" json:"fetch_timeout" help:"default time to wait for relays to answer a fetch"`
	SendTimeout    time.Duration `arg:"--sendtimeout" json:"send_timeout" help:"time to wait for OK from relays after publishing"`
	ConnectTimeout time.Duration `arg:"--connecttimeout" json:"connect_timeout" help:"time to wait for a relay connection"`
	SyncTimeout    time.Duration `arg:"--synctimeout" json:"sync_timeout" help:"time limit for a negentropy reconciliation with one relay"`
	// ReconnectEvery is the minimum spacing of reconnect attempts to one
	// relay, with a burst of ReconnectBurst.
	ReconnectEvery time.Duration `arg:"--reconnect" json:"reconnect_every" help:"minimum time between reconnect attempts to a relay"`
	ReconnectBurst int           `arg:"--reconnectburst" json:"reconnect_burst" help:"reconnect attempts allowed in a burst"`
	// CountInterval is the minimum spacing of interaction count updates.
	CountInterval time.Duration `arg:"--countinterval" json:"count_interval" help:"minimum time between interaction count updates"`
	ThreadDepth   int           `arg:"--threaddepth" json:"thread_depth" help:"default reply depth fetched for threads"`
	CleanupDays   int           `arg:"--cleanupdays" json:"cleanup_days" help:"default retention for cleanup in days"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Profile:         "nostrengine",
		Discover:        append([]string{}, DiscoveryRelays...),
		LogLevel:        "info",
		StoreCapacities: []int64{256, 64, 16},
		FetchTimeout:    10 * time.Second,
		SendTimeout:     7 * time.Second,
		ConnectTimeout:  5 * time.Second,
		SyncTimeout:     30 * time.Second,
		ReconnectEvery:  10 * time.Second,
		ReconnectBurst:  3,
		CountInterval:   250 * time.Millisecond,
		ThreadDepth:     3,
		CleanupDays:     30,
	}
}

// Dir returns the data directory: DataDir when given, else ~/.<Profile>.
func (c *Config) Dir() (dir string, err error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	var home string
	if home, err = os.UserHomeDir(); chk.E(err) {
		return
	}
	dir = filepath.Join(home, "."+c.Profile)
	return
}

func (c *Config) StorePath() (p string, err error) {
	var dir string
	if dir, err = c.Dir(); err != nil {
		return
	}
	return filepath.Join(dir, "db"), nil
}

func (c *Config) Path() (p string, err error) {
	var dir string
	if dir, err = c.Dir(); err != nil {
		return
	}
	return filepath.Join(dir, "config.json"), nil
}

func (c *Config) Save(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot save nil config")
		log.E.Ln(err)
		return
	}
	if err = os.MkdirAll(filepath.Dir(filename), 0700); chk.E(err) {
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(c, "", "    "); chk.E(err) {
		return
	}
	if err = os.WriteFile(filename, b, 0600); chk.E(err) {
		return
	}
	return
}

func (c *Config) Load(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot load into nil config")
		chk.E(err)
		return
	}
	var b []byte
	if b, err = os.ReadFile(filename); err != nil {
		log.D.Ln(err)
		return
	}
	if err = json.Unmarshal(b, c); chk.E(err) {
		return
	}
	return
}

// Merge takes every value from file that was left at its default on the
// command line, so flags given explicitly win over the saved configuration.
func (c *Config) Merge(file *Config) {
	if file == nil {
		return
	}
	def := GetDefaultConfig()
	if len(c.Relays) == 0 {
		c.Relays = file.Relays
	}
	if len(file.Discover) > 0 && slices.Equal(c.Discover, def.Discover) {
		c.Discover = file.Discover
	}
	if c.SecKey == "" {
		c.SecKey = file.SecKey
	}
	if file.LogLevel != "" && c.LogLevel == def.LogLevel {
		c.LogLevel = file.LogLevel
	}
	c.FilterReplies = c.FilterReplies || file.FilterReplies
	if len(file.StoreCapacities) > 0 &&
		slices.Equal(c.StoreCapacities, def.StoreCapacities) {
		c.StoreCapacities = file.StoreCapacities
	}
	merge(&c.FetchTimeout, def.FetchTimeout, file.FetchTimeout)
	merge(&c.SendTimeout, def.SendTimeout, file.SendTimeout)
	merge(&c.ConnectTimeout, def.ConnectTimeout, file.ConnectTimeout)
	merge(&c.SyncTimeout, def.SyncTimeout, file.SyncTimeout)
	merge(&c.ReconnectEvery, def.ReconnectEvery, file.ReconnectEvery)
	merge(&c.CountInterval, def.CountInterval, file.CountInterval)
	merge(&c.ReconnectBurst, def.ReconnectBurst, file.ReconnectBurst)
	merge(&c.ThreadDepth, def.ThreadDepth, file.ThreadDepth)
	merge(&c.CleanupDays, def.CleanupDays, file.CleanupDays)
}

func merge[V comparable](dst *V, def, file V) {
	var zero V
	if *dst == def && file != zero {
		*dst = file
	}
}
