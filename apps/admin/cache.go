package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/trezcool/coursefactory/core/querycache"
)

const cacheAPIPath = "/v1/admin/cache"

func (cli *commandLine) defaultAPIURL() string {
	if cli.conf == nil {
		return ""
	}
	addr := cli.conf.Server.Address
	if strings.HasPrefix(addr, ":") {
		addr = cli.conf.Server.Host + addr
	}
	return "http://" + addr
}

func (cli *commandLine) cacheStats(apiURL string) error {
	var stats querycache.Stats
	if err := cli.callAPI(context.Background(), http.MethodGet, apiURL, cacheAPIPath, nil, &stats); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "total: %d\nvalid: %d\nexpired: %d\n", stats.Total, stats.Valid, stats.Expired)
	return nil
}

func (cli *commandLine) cacheClear(apiURL, pattern string) error {
	q := make(url.Values)
	if pattern != "" {
		q.Set("pattern", pattern)
	}
	var res struct {
		Removed int `json:"removed"`
	}
	if err := cli.callAPI(context.Background(), http.MethodDelete, apiURL, cacheAPIPath, q, &res); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "removed: %d\n", res.Removed)
	return nil
}
