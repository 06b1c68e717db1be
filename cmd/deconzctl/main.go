// deconzctl controls lights attached to a deCONZ gateway from the
// terminal. Without a command it opens the interactive light list;
// subcommands cover pairing, discovery, scripted control, scenes, and
// the gateway event stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"deconzctl/config"
	"deconzctl/internal/deconz"
	"deconzctl/internal/discovery"
	"deconzctl/internal/lights"
	"deconzctl/internal/mqtt"
	"deconzctl/internal/scenes"
	"deconzctl/internal/store"
	"deconzctl/internal/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := pflag.NewFlagSet("deconzctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.String("config", "", "path to config file or directory")
	demo := global.Bool("demo", false, "demo mode: hold light state in memory and print would-be requests")
	help := global.BoolP("help", "h", false, "show help")

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage()
			return nil
		}
		return err
	}
	if *help {
		printUsage()
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *demo {
		cfg.Demo = true
	}

	app := &app{cfg: cfg}

	rest := global.Args()
	command := "tui"
	if len(rest) > 0 {
		command = rest[0]
		rest = rest[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "tui":
		return app.runTUI(ctx)
	case "pair":
		return app.runPair(ctx, rest)
	case "discover":
		return app.runDiscover(ctx)
	case "lights":
		return app.runLights(ctx, rest)
	case "state":
		return app.runState(ctx, rest)
	case "on":
		return app.runPower(ctx, rest, true)
	case "off":
		return app.runPower(ctx, rest, false)
	case "toggle":
		return app.runToggle(ctx, rest)
	case "set":
		return app.runSet(ctx, rest)
	case "groups":
		return app.runGroups(ctx)
	case "group":
		return app.runGroup(ctx, rest)
	case "scene":
		return app.runScene(ctx, rest)
	case "search-lights":
		return app.runSearchLights(ctx)
	case "watch":
		return app.runWatch(ctx)
	case "serve":
		return app.runServe(ctx)
	case "help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try \"deconzctl help\")", command)
	}
}

func printUsage() {
	fmt.Print(`deconzctl — control lights on a deCONZ gateway

Usage:
  deconzctl [--config PATH] [--demo] <command> [flags]

Commands:
  tui             interactive light list (default)
  pair            acquire an API key via the gateway's link button
  discover        find gateways on the local network
  lights          list lights (--search QUERY filters by name)
  state ID        show the state of one light
  on ID           turn a light on
  off ID          turn a light off
  toggle ID       flip a light's on/off state
  set ID          change state (--bri, --hue, --sat, --ct, --color #hex, --on/--off)
  groups          list gateway groups
  group ID        change a whole group (same flags as set)
  scene           list | save NAME [IDS...] | apply NAME | delete NAME
  search-lights   open the Zigbee network for new lights and report them
  watch           print the gateway's live event stream
  serve           republish gateway events to the configured MQTT broker

A light ID is the gateway id ("5"), a device id ("deconz:5"), or a
unique name match. DECONZ_HOST and DECONZ_API_KEY override the config
file.
`)
}

// app wires the packages together per invocation. The gateway client,
// manager and store are built lazily so commands that need no gateway
// (demo mode, discover) work without one configured.
type app struct {
	cfg    *config.Config
	client *deconz.Client
	host   string
	st     *store.Store
}

func (a *app) stateStore() (*store.Store, error) {
	if a.st != nil {
		return a.st, nil
	}
	s, err := store.New()
	if err != nil {
		return nil, err
	}
	a.st = s
	return a.st, nil
}

// gatewayClient builds the REST client from config and environment,
// falling back to the gateway that "pair" or "discover" saved when
// they carry no address or key.
func (a *app) gatewayClient() (*deconz.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	host := a.cfg.Gateway.Host
	port := a.cfg.Gateway.Port
	key := a.cfg.Gateway.APIKey
	if host == "" || key == "" {
		if gw, ok := a.storedGateway(host); ok {
			if host == "" {
				host = gw.Host
				port = gw.Port
			}
			if key == "" {
				key = gw.APIKey
			}
		}
	}

	if host == "" {
		return nil, errors.New("no gateway configured: run \"deconzctl discover\" and \"deconzctl pair\", or set DECONZ_HOST")
	}
	if key == "" {
		return nil, errors.New("no API key configured: run \"deconzctl pair\" or set DECONZ_API_KEY")
	}
	a.host = host
	a.client = deconz.NewClient(fmt.Sprintf("http://%s:%d", host, port), key)
	return a.client, nil
}

// storedGateway returns the saved gateway for host, or the first saved
// one when host is empty.
func (a *app) storedGateway(host string) (store.Gateway, bool) {
	s, err := a.stateStore()
	if err != nil {
		return store.Gateway{}, false
	}
	for _, gw := range s.GetGateways() {
		if host == "" || gw.Host == host {
			return gw, true
		}
	}
	return store.Gateway{}, false
}

func (a *app) manager() (*lights.Manager, error) {
	m := lights.NewManager()
	if a.cfg.Demo {
		m.RegisterController(lights.NewDemoController())
		return m, nil
	}
	client, err := a.gatewayClient()
	if err != nil {
		return nil, err
	}
	m.RegisterController(lights.NewDeconzController(client))
	// Seed the device list from the last discovery so name lookups
	// work before the gateway has been queried.
	if s, err := a.stateStore(); err == nil {
		m.SetDevices(s.GetDevices())
	}
	return m, nil
}

// discoverDevices refreshes the live device list and persists it as
// the cache manager() seeds from.
func (a *app) discoverDevices(ctx context.Context, manager *lights.Manager) ([]lights.Device, error) {
	devices, err := manager.DiscoverAll(ctx)
	if err != nil {
		return nil, err
	}
	if !a.cfg.Demo {
		if s, err := a.stateStore(); err == nil {
			if err := s.SetDevices(devices); err != nil {
				log.Printf("[store] Caching devices failed: %v", err)
			}
		}
	}
	return devices, nil
}

func (a *app) runTUI(ctx context.Context) error {
	manager, err := a.manager()
	if err != nil {
		return err
	}
	defer manager.Close()

	// The TUI owns the terminal; route log output away from it.
	logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err == nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	// The poll interval lives in the store; an explicit config value
	// overrides it and becomes the remembered setting.
	interval := time.Duration(a.cfg.TUI.PollIntervalMs) * time.Millisecond
	if s, err := a.stateStore(); err == nil {
		if a.cfg.TUI.PollIntervalMs > 0 {
			_ = s.SetSettings(store.Settings{PollIntervalMs: a.cfg.TUI.PollIntervalMs})
		} else {
			interval = time.Duration(s.GetSettings().PollIntervalMs) * time.Millisecond
		}
	}
	model := tui.New(manager, interval)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (a *app) runPair(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("pair", pflag.ContinueOnError)
	devicetype := flags.String("devicetype", a.cfg.Gateway.Devicetype, "name the gateway lists this client under")
	timeout := flags.Duration("timeout", 2*time.Minute, "how long to wait for the link button")
	if err := flags.Parse(args); err != nil {
		return err
	}

	host := a.cfg.Gateway.Host
	port := a.cfg.Gateway.Port
	if host == "" {
		if gw, ok := a.storedGateway(""); ok {
			host = gw.Host
			port = gw.Port
		}
	}
	if host == "" {
		return errors.New("no gateway configured: run \"deconzctl discover\" first or set DECONZ_HOST")
	}

	baseURL := fmt.Sprintf("http://%s:%d", host, port)
	client := deconz.NewClient(baseURL, "")

	fmt.Printf("Press the link button on the gateway at %s...\n", baseURL)

	pairCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	for {
		key, err := client.Pair(pairCtx, *devicetype)
		if err == nil {
			fmt.Printf("Paired. API key: %s\n", key)
			s, serr := a.stateStore()
			if serr != nil {
				return fmt.Errorf("saving api key: %w", serr)
			}
			if err := s.UpsertGateway(store.Gateway{
				Host:   host,
				Port:   port,
				APIKey: key,
			}); err != nil {
				return fmt.Errorf("saving api key: %w", err)
			}
			fmt.Println("The key is saved; future commands use it automatically.")
			return nil
		}
		if !errors.Is(err, deconz.ErrLinkButtonNotPressed) {
			return err
		}
		select {
		case <-pairCtx.Done():
			return fmt.Errorf("link button was not pressed within %s", *timeout)
		case <-time.After(2 * time.Second):
		}
	}
}

func (a *app) runDiscover(ctx context.Context) error {
	scanCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	gateways := discovery.NewScanner().Scan(scanCtx)
	if len(gateways) == 0 {
		return errors.New("no gateways found")
	}

	s, serr := a.stateStore()
	for _, gw := range gateways {
		fmt.Printf("%s\t%s:%d\t%s\n", gw.BridgeID, gw.Host, gw.Port, gw.Name)
		if serr != nil {
			continue
		}
		// Remember the gateway; UpsertGateway keeps an API key a
		// previous pairing stored for the same address.
		if err := s.UpsertGateway(store.Gateway{
			Host:     gw.Host,
			Port:     gw.Port,
			BridgeID: gw.BridgeID,
			Name:     gw.Name,
		}); err != nil {
			log.Printf("[store] Saving gateway failed: %v", err)
		}
	}
	return nil
}

func (a *app) runLights(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("lights", pflag.ContinueOnError)
	search := flags.String("search", "", "filter lights by name or id")
	if err := flags.Parse(args); err != nil {
		return err
	}

	manager, err := a.manager()
	if err != nil {
		return err
	}
	defer manager.Close()

	if _, err := a.discoverDevices(ctx, manager); err != nil {
		return err
	}

	devices := manager.Search(*search)
	if len(devices) == 0 {
		fmt.Println("no lights found")
		return nil
	}
	for _, d := range devices {
		state, err := manager.GetState(ctx, d.ID)
		status := "?"
		if err == nil {
			status = "off"
			if state.On {
				status = "on"
			}
			if !state.Reachable {
				status += " (unreachable)"
			}
		}
		fmt.Printf("%-12s %-30s %s\n", d.ID, d.Name, status)
	}
	return nil
}

func (a *app) runState(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: deconzctl state ID")
	}
	manager, err := a.manager()
	if err != nil {
		return err
	}
	defer manager.Close()

	deviceID, err := a.resolveDevice(ctx, manager, args[0])
	if err != nil {
		return err
	}
	state, err := manager.GetState(ctx, deviceID)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", deviceID)
	fmt.Printf("  on:        %v\n", state.On)
	fmt.Printf("  reachable: %v\n", state.Reachable)
	if state.Bri != nil {
		fmt.Printf("  bri:       %d\n", *state.Bri)
	}
	if state.Hue != nil {
		fmt.Printf("  hue:       %d\n", *state.Hue)
	}
	if state.Sat != nil {
		fmt.Printf("  sat:       %d\n", *state.Sat)
	}
	if state.CT != nil {
		fmt.Printf("  ct:        %d\n", *state.CT)
	}
	if hex := lights.HexFromState(state); hex != "" {
		fmt.Printf("  color:     %s\n", hex)
	}
	return nil
}

func (a *app) runPower(ctx context.Context, args []string, on bool) error {
	if len(args) != 1 {
		verb := "off"
		if on {
			verb = "on"
		}
		return fmt.Errorf("usage: deconzctl %s ID", verb)
	}
	manager, err := a.manager()
	if err != nil {
		return err
	}
	defer manager.Close()

	deviceID, err := a.resolveDevice(ctx, manager, args[0])
	if err != nil {
		return err
	}
	if on {
		return manager.TurnOn(ctx, deviceID)
	}
	return manager.TurnOff(ctx, deviceID)
}

func (a *app) runToggle(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: deconzctl toggle ID")
	}
	manager, err := a.manager()
	if err != nil {
		return err
	}
	defer manager.Close()

	deviceID, err := a.resolveDevice(ctx, manager, args[0])
	if err != nil {
		return err
	}
	on, err := manager.Toggle(ctx, deviceID)
	if err != nil {
		return err
	}
	if on {
		fmt.Printf("%s is now on\n", deviceID)
	} else {
		fmt.Printf("%s is now off\n", deviceID)
	}
	return nil
}

func (a *app) runSet(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("set", pflag.ContinueOnError)
	change, err := parseChangeFlags(flags, args)
	if err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) != 1 {
		return errors.New("usage: deconzctl set ID [flags]")
	}

	manager, err := a.manager()
	if err != nil {
		return err
	}
	defer manager.Close()

	deviceID, err := a.resolveDevice(ctx, manager, rest[0])
	if err != nil {
		return err
	}
	return manager.SetState(ctx, deviceID, change)
}

func (a *app) runGroups(ctx context.Context) error {
	if a.cfg.Demo {
		return errors.New("groups are not available in demo mode")
	}
	client, err := a.gatewayClient()
	if err != nil {
		return err
	}
	groups, err := client.Groups(ctx)
	if err != nil {
		return err
	}
	for _, id := range deconz.SortedIDs(groups) {
		g := groups[id]
		status := "all off"
		if g.State.AllOn {
			status = "all on"
		} else if g.State.AnyOn {
			status = "some on"
		}
		fmt.Printf("%-4d %-30s %d light(s)  %s\n", id, g.Name, len(g.Lights), status)
	}
	return nil
}

func (a *app) runGroup(ctx context.Context, args []string) error {
	if a.cfg.Demo {
		return errors.New("groups are not available in demo mode")
	}
	flags := pflag.NewFlagSet("group", pflag.ContinueOnError)
	change, err := parseChangeFlags(flags, args)
	if err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) != 1 {
		return errors.New("usage: deconzctl group ID [flags]")
	}
	id, err := strconv.Atoi(rest[0])
	if err != nil {
		return fmt.Errorf("group id %q is not numeric", rest[0])
	}

	client, err := a.gatewayClient()
	if err != nil {
		return err
	}
	return client.SetGroupAction(ctx, id, deconz.StateChange{
		On:             change.On,
		Bri:            change.Bri,
		Hue:            change.Hue,
		Sat:            change.Sat,
		CT:             change.CT,
		TransitionTime: change.TransitionTime,
	})
}

func (a *app) runScene(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}

	s, err := a.stateStore()
	if err != nil {
		return err
	}
	manager, err := a.manager()
	if err != nil {
		return err
	}
	defer manager.Close()
	sceneManager := scenes.NewManager(s, manager)

	switch args[0] {
	case "list":
		all := sceneManager.GetScenes()
		if len(all) == 0 {
			fmt.Println("no scenes saved")
			return nil
		}
		for _, sc := range all {
			fmt.Printf("%-30s %d light(s)\n", sc.Name, len(sc.Devices))
		}
		return nil

	case "save":
		if len(args) < 2 {
			return errors.New("usage: deconzctl scene save NAME [IDS...]")
		}
		name := args[1]
		if _, err := a.discoverDevices(ctx, manager); err != nil {
			return err
		}
		var deviceIDs []string
		if len(args) > 2 {
			for _, arg := range args[2:] {
				id, err := a.resolveDevice(ctx, manager, arg)
				if err != nil {
					return err
				}
				deviceIDs = append(deviceIDs, id)
			}
		} else {
			for _, d := range manager.GetDevices() {
				deviceIDs = append(deviceIDs, d.ID)
			}
		}
		scene, err := sceneManager.Capture(ctx, name, deviceIDs)
		if err != nil {
			return err
		}
		fmt.Printf("Saved scene %q with %d light(s)\n", scene.Name, len(scene.Devices))
		return nil

	case "apply":
		if len(args) != 2 {
			return errors.New("usage: deconzctl scene apply NAME")
		}
		return sceneManager.ActivateScene(ctx, args[1])

	case "delete":
		if len(args) != 2 {
			return errors.New("usage: deconzctl scene delete NAME")
		}
		scene, err := sceneManager.GetScene(args[1])
		if err != nil {
			return err
		}
		return sceneManager.DeleteScene(scene.ID)

	default:
		return fmt.Errorf("unknown scene command %q", args[0])
	}
}

func (a *app) runSearchLights(ctx context.Context) error {
	if a.cfg.Demo {
		return errors.New("the light search needs a real gateway")
	}
	client, err := a.gatewayClient()
	if err != nil {
		return err
	}

	if err := client.SearchLights(ctx); err != nil {
		return err
	}
	fmt.Println("Searching for new lights for one minute...")

	deadline := time.Now().Add(70 * time.Second)
	seen := make(map[int]bool)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
		found, err := client.NewLights(ctx)
		if err != nil {
			return err
		}
		for id, name := range found {
			if seen[id] {
				continue
			}
			seen[id] = true
			fmt.Printf("Found light %d: %s\n", id, name)
		}
	}
	if len(seen) == 0 {
		fmt.Println("No new lights found.")
	}
	return nil
}

func (a *app) eventStream(ctx context.Context) (*deconz.EventStream, error) {
	client, err := a.gatewayClient()
	if err != nil {
		return nil, err
	}
	cfg, err := client.Config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.WebsocketPort == 0 {
		return nil, errors.New("gateway reports no websocket port")
	}
	return deconz.NewEventStream(a.host, cfg.WebsocketPort), nil
}

func (a *app) runWatch(ctx context.Context) error {
	if a.cfg.Demo {
		return errors.New("the event stream needs a real gateway")
	}
	stream, err := a.eventStream(ctx)
	if err != nil {
		return err
	}

	go func() {
		_ = stream.Run(ctx)
	}()

	for ev := range stream.Events() {
		line := fmt.Sprintf("%s %s/%s", ev.Event, ev.Resource, ev.ID)
		if ev.State != nil {
			if ev.State.On {
				line += " on"
			} else {
				line += " off"
			}
			if ev.State.Bri != nil {
				line += fmt.Sprintf(" bri=%d", *ev.State.Bri)
			}
		}
		fmt.Println(line)
	}
	return ctx.Err()
}

func (a *app) runServe(ctx context.Context) error {
	if a.cfg.Demo {
		return errors.New("serve needs a real gateway")
	}
	if a.cfg.MQTT.Broker == "" {
		return errors.New("no MQTT broker configured")
	}

	stream, err := a.eventStream(ctx)
	if err != nil {
		return err
	}

	publisher := mqtt.NewPublisher(mqtt.Options{
		Broker:      a.cfg.MQTT.Broker,
		ClientID:    a.cfg.MQTT.ClientID,
		Username:    a.cfg.MQTT.Username,
		Password:    a.cfg.MQTT.Password,
		TopicPrefix: a.cfg.MQTT.TopicPrefix,
	})
	if err := publisher.Connect(); err != nil {
		return err
	}
	defer publisher.Disconnect()

	go func() {
		_ = stream.Run(ctx)
	}()

	log.Printf("[serve] Republishing gateway events to %s", a.cfg.MQTT.Broker)
	for ev := range stream.Events() {
		if err := publisher.Publish(ev); err != nil {
			log.Printf("[serve] Publish failed: %v", err)
		}
	}
	return ctx.Err()
}

// resolveDevice turns a user-supplied light reference into a device
// id. Accepted forms: a full device id ("deconz:5"), a bare gateway id
// ("5"), or a name that matches exactly one light.
func (a *app) resolveDevice(ctx context.Context, manager *lights.Manager, arg string) (string, error) {
	if strings.Contains(arg, ":") {
		return arg, nil
	}
	if _, err := strconv.Atoi(arg); err == nil {
		if a.cfg.Demo {
			return "demo:" + arg, nil
		}
		return "deconz:" + arg, nil
	}

	if len(manager.GetDevices()) == 0 {
		if _, err := a.discoverDevices(ctx, manager); err != nil {
			return "", err
		}
	}
	matches := manager.Search(arg)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no light matches %q", arg)
	case 1:
		return matches[0].ID, nil
	default:
		names := make([]string, 0, len(matches))
		for _, d := range matches {
			names = append(names, fmt.Sprintf("%s (%s)", d.Name, d.ID))
		}
		sort.Strings(names)
		return "", fmt.Errorf("%q is ambiguous: %s", arg, strings.Join(names, ", "))
	}
}

// parseChangeFlags registers and parses the shared state-change flags
// of "set" and "group". Only flags the user passed end up in the
// change.
func parseChangeFlags(flags *pflag.FlagSet, args []string) (lights.StateChange, error) {
	on := flags.Bool("on", false, "turn on")
	off := flags.Bool("off", false, "turn off")
	bri := flags.Int("bri", -1, "brightness 0-255")
	hue := flags.Int("hue", -1, "hue 0-65535")
	sat := flags.Int("sat", -1, "saturation 0-255")
	ct := flags.Int("ct", -1, "color temperature in mired")
	colorHex := flags.String("color", "", "color as #rrggbb (sets hue, sat and bri)")
	transition := flags.Int("transition", -1, "transition time in 100ms steps")

	if err := flags.Parse(args); err != nil {
		return lights.StateChange{}, err
	}
	if *on && *off {
		return lights.StateChange{}, errors.New("--on and --off are mutually exclusive")
	}

	var change lights.StateChange
	if *on || *off {
		v := *on
		change.On = &v
	}
	if *bri >= 0 {
		if *bri > 255 {
			return lights.StateChange{}, errors.New("--bri must be 0-255")
		}
		v := uint8(*bri)
		change.Bri = &v
	}
	if *hue >= 0 {
		if *hue > 65535 {
			return lights.StateChange{}, errors.New("--hue must be 0-65535")
		}
		v := uint16(*hue)
		change.Hue = &v
	}
	if *sat >= 0 {
		if *sat > 255 {
			return lights.StateChange{}, errors.New("--sat must be 0-255")
		}
		v := uint8(*sat)
		change.Sat = &v
	}
	if *ct >= 0 {
		if *ct > 65535 {
			return lights.StateChange{}, errors.New("--ct must be 0-65535")
		}
		v := uint16(*ct)
		change.CT = &v
	}
	if *colorHex != "" {
		h, s, b, err := lights.ParseHexColor(*colorHex)
		if err != nil {
			return lights.StateChange{}, fmt.Errorf("invalid --color %q: %w", *colorHex, err)
		}
		change.Hue = &h
		change.Sat = &s
		change.Bri = &b
	}
	if *transition >= 0 {
		if *transition > 65535 {
			return lights.StateChange{}, errors.New("--transition must be 0-65535")
		}
		v := uint16(*transition)
		change.TransitionTime = &v
	}

	if change == (lights.StateChange{}) {
		return lights.StateChange{}, errors.New("no state change requested")
	}
	return change, nil
}
