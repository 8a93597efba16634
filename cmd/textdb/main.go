package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fulldump/goconfig"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/fulldump/textdb/bootstrap"
	"github.com/fulldump/textdb/configuration"
)

var banner = `
 _            _      _ _     
| |_ _____  _| |_ __| | |__  
| __/ _ \ \/ / __/ _' | '_ \ 
| ||  __/>  <| || (_| | |_) |
 \__\___/_/\_\\__\__,_|_.__/ 
              version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	logger := newLogger(c.LogLevel)
	slog.SetDefault(logger)

	start, _, err := bootstrap.Bootstrap(&c, logger)
	if err != nil {
		logger.Error("bootstrap", "err", err)
		os.Exit(1)
	}

	start()
}

func newLogger(level string) *slog.Logger {

	ll := &slog.LevelVar{}
	if err := ll.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		ll.Set(slog.LevelInfo)
	}

	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}
