// Command client reads store commands from stdin and sends them to the
// replicas listed in the table, hopping to the next one when a replica stops
// answering.
//
//	client -table servers.txt
//	> purchase alice widget 2
//	Your order has been placed, 1 alice widget 2
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"

	"github.com/senutpal/quorumstore/internal/client"
	"github.com/senutpal/quorumstore/internal/config"
	"github.com/senutpal/quorumstore/internal/membership"
	"github.com/senutpal/quorumstore/internal/server"
)

func main() {
	table := flag.String("table", "servers.txt", "replica table file")
	timeout := flag.Duration("timeout", client.DefaultTimeout, "connect and read timeout per replica")
	flag.Parse()
	defer glog.Flush()

	entries, err := membership.ParseFile(*table)
	if err != nil {
		glog.Exitf("table %s: %v", *table, err)
	}
	c := client.New(config.RequestAddrs(entries), *timeout)
	defer c.Close()

	in := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
		case server.Exit:
			return
		default:
			lines, err := c.Do(line)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				break
			}
			for _, l := range lines {
				fmt.Println(l)
			}
		}
		fmt.Print("> ")
	}
}
