package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/rjboer/GoSpectrum/internal/mdns"
)

func main() {
	timeout := pflag.DurationP("timeout", "t", mdns.DefaultTimeout, "How long to browse")
	service := pflag.StringP("service", "s", mdns.DefaultService, "DNS-SD service type")
	pflag.Parse()

	fmt.Println("===============================================================")
	fmt.Println(" OpenWebRX mDNS / DNS-SD Discovery")
	fmt.Println("===============================================================")
	fmt.Printf(" Service : %s.%s\n", *service, mdns.DefaultDomain)
	fmt.Printf(" Timeout : %s\n", *timeout)
	fmt.Println("---------------------------------------------------------------")

	start := time.Now()
	hosts, err := mdns.Discover(context.Background(), *service, *timeout)
	duration := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery error: %v\n", err)
		os.Exit(1)
	}

	if len(hosts) == 0 {
		fmt.Printf("No receivers found (%s)\n", duration.Truncate(time.Millisecond))
		return
	}

	fmt.Printf("Discovered %d receiver(s) in %s\n",
		len(hosts), duration.Truncate(time.Millisecond))
	fmt.Println("===============================================================")

	for i, h := range hosts {
		fmt.Printf(" Receiver #%d\n", i+1)
		fmt.Println("---------------------------------------------------------------")
		fmt.Printf(" Instance  : %s\n", h.Instance)
		fmt.Printf(" Hostname  : %s\n", h.Hostname)
		fmt.Printf(" Port      : %d\n", h.Port)
		fmt.Printf(" Websocket : %s\n", h.WebsocketURL())

		fmt.Println(" Addresses:")
		if len(h.Addresses) == 0 {
			fmt.Println("   <none>")
		} else {
			for _, ip := range h.Addresses {
				fmt.Printf("   - %s\n", ip.String())
			}
		}

		fmt.Println(" TXT Records:")
		if len(h.TXT) == 0 {
			fmt.Println("   <none>")
		} else {
			for _, t := range h.TXT {
				fmt.Printf("   - %s\n", t)
			}
		}
		fmt.Println("===============================================================")
	}
}
