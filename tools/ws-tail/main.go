// ws-tail connects to amichand's dashboard websocket feed and prints each
// envelope it receives. Envelopes look like:
//
//	{"messageType":"RECENT_CALLS","data":[...calllog.CallEvent],"timestamp":...}
//	{"messageType":"B_DIAL","data":{...calllog.CallEvent},"timestamp":...}
//	{"messageType":"TRANSFER","data":{...calllog.CallEvent},"timestamp":...}
package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	path := flag.String("path", "/ws", "websocket path")
	count := flag.Int("count", 10, "number of messages to print before exiting (0 = unlimited)")
	timeout := flag.Duration("timeout", 0, "stop reading after this long (0 = no timeout)")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: *path}

	log.Printf("connecting to %s", u.String())
	dialer := websocket.DefaultDialer
	c, resp, err := dialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("dial error: %v (status=%s)", err, resp.Status)
		}
		log.Fatalf("dial error: %v", err)
	}
	defer c.Close()

	if *timeout > 0 {
		c.SetReadDeadline(time.Now().Add(*timeout))
	}
	for i := 0; *count == 0 || i < *count; i++ {
		_, msg, err := c.ReadMessage()
		if err != nil {
			log.Printf("read error: %v", err)
			os.Exit(1)
		}
		fmt.Printf("msg[%d]=%s\n", i, string(msg))
	}
}
