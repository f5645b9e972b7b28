// Copyright 2026 The SplitLink Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// uhkflash talks to a split keyboard's bootloader over its USB-CDC serial
// port: ping, property queries, and firmware flashing. The monitor
// subcommand drives the peripheral bus scheduler against a local I2C bus.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	splitlink "github.com/SplitLinkProject/go-splitlink"
	"github.com/SplitLinkProject/go-splitlink/bootcmd"
	"github.com/SplitLinkProject/go-splitlink/link"
	"github.com/SplitLinkProject/go-splitlink/slave"
	"github.com/SplitLinkProject/go-splitlink/transport/i2c"
	"github.com/SplitLinkProject/go-splitlink/transport/uart"
)

var (
	flagPort  string
	flagBus   string
	flagDebug bool
)

func main() {
	root := &cobra.Command{
		Use:           "uhkflash",
		Short:         "Split keyboard bootloader and bus utility",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if flagDebug {
				splitlink.SetDebug(true)
			}
		},
	}
	root.PersistentFlags().StringVarP(&flagPort, "port", "p", "", "serial port of the bootloader")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug output")

	root.AddCommand(newPingCmd(), newInfoCmd(), newFlashCmd(), newMonitorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newClient opens the serial port and builds a bootloader command client.
// The returned closer finalizes the link before releasing the port.
func newClient() (*bootcmd.Client, func(), error) {
	if flagPort == "" {
		return nil, nil, fmt.Errorf("--port is required")
	}
	transport, err := uart.New(flagPort)
	if err != nil {
		return nil, nil, err
	}
	l := link.New(transport, nil)
	closer := func() {
		_ = l.Finalize()
		_ = transport.Close()
	}
	return bootcmd.NewClient(l), closer, nil
}

// pingWithRetry tolerates transient serial glitches while the bootloader
// settles after USB enumeration. It gives up immediately when the port is
// gone or the failure cannot be retried.
func pingWithRetry(client *bootcmd.Client, attempts int) (link.Version, error) {
	var (
		version link.Version
		err     error
	)
	for i := 0; i < attempts; i++ {
		version, err = client.Ping()
		if err == nil {
			return version, nil
		}
		if splitlink.IsFatal(err) || !splitlink.IsRetryable(err) {
			return link.Version{}, err
		}
		time.Sleep(100 * time.Millisecond)
	}
	return link.Version{}, err
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the bootloader is alive and print its protocol version",
		RunE: func(*cobra.Command, []string) error {
			client, closer, err := newClient()
			if err != nil {
				return err
			}
			defer closer()

			version, err := pingWithRetry(client, 3)
			if err != nil {
				return err
			}
			fmt.Printf("Bootloader protocol %c %d.%d.%d\n",
				version.Name, version.Major, version.Minor, version.Bugfix)
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Query bootloader properties",
		RunE: func(*cobra.Command, []string) error {
			client, closer, err := newClient()
			if err != nil {
				return err
			}
			defer closer()

			properties := []struct {
				name string
				tag  uint32
			}{
				{"Current version", bootcmd.PropertyCurrentVersion},
				{"Flash start address", bootcmd.PropertyFlashStartAddress},
				{"Flash size", bootcmd.PropertyFlashSizeInBytes},
				{"Max packet size", bootcmd.PropertyMaxPacketSize},
			}
			for _, p := range properties {
				values, err := client.GetProperty(p.tag)
				if err != nil {
					return fmt.Errorf("get property %q: %w", p.name, err)
				}
				if len(values) > 0 {
					fmt.Printf("%-20s 0x%08X\n", p.name, values[0])
				}
			}
			return nil
		},
	}
}

func newFlashCmd() *cobra.Command {
	var (
		address uint32
		noReset bool
	)
	cmd := &cobra.Command{
		Use:   "flash <image>",
		Short: "Erase and write a firmware image",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			client, closer, err := newClient()
			if err != nil {
				return err
			}
			defer closer()

			if _, err := pingWithRetry(client, 3); err != nil {
				return fmt.Errorf("bootloader not responding: %w", err)
			}

			fmt.Printf("Erasing 0x%X bytes at 0x%08X...\n", len(image), address)
			if err := client.FlashEraseRegion(address, uint32(len(image))); err != nil {
				return fmt.Errorf("erase: %w", err)
			}

			fmt.Printf("Writing %d bytes...\n", len(image))
			if err := client.WriteMemory(address, image); err != nil {
				return fmt.Errorf("write: %w", err)
			}

			if !noReset {
				fmt.Println("Resetting into firmware...")
				if err := client.Reset(); err != nil {
					return fmt.Errorf("reset: %w", err)
				}
			}
			fmt.Println("Done.")
			return nil
		},
	}
	cmd.Flags().Uint32Var(&address, "address", 0, "flash address to write the image at")
	cmd.Flags().BoolVar(&noReset, "no-reset", false, "leave the bootloader running after flashing")
	return cmd
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the peripheral bus scheduler and report device status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flagBus == "" {
				return fmt.Errorf("--bus is required")
			}
			transactor, err := i2c.New(flagBus)
			if err != nil {
				return err
			}
			defer func() { _ = transactor.Close() }()

			keyStates := &slave.KeyStateTable{}
			scheduler := slave.NewScheduler(transactor, nil)
			scheduler.RegisterDefaults(keyStates)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			scheduler.Start(ctx)
			defer scheduler.Stop()

			report := time.NewTicker(time.Second)
			defer report.Stop()
			for {
				select {
				case <-ctx.Done():
					fmt.Println()
					return nil
				case <-report.C:
					ticks, transfers, faults := scheduler.Stats()
					fmt.Printf("\rleft:%v addonL:%v addonR:%v ticks:%d transfers:%d faults:%d ",
						scheduler.IsConnected(slave.SlaveLeftKeyboardHalf),
						scheduler.IsConnected(slave.SlaveLeftAddon),
						scheduler.IsConnected(slave.SlaveRightAddon),
						ticks, transfers, faults)
				}
			}
		},
	}
	cmd.Flags().StringVar(&flagBus, "bus", "", "I2C bus device of the peripheral chain")
	return cmd
}
