// Package main provides the CLI entry point for the Spotify protocol
// client.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spotifyclient/gosptok/internal/audiokey"
	"github.com/spotifyclient/gosptok/internal/cdn"
	"github.com/spotifyclient/gosptok/internal/config"
	"github.com/spotifyclient/gosptok/internal/feeder"
	"github.com/spotifyclient/gosptok/internal/identity"
	"github.com/spotifyclient/gosptok/internal/logging"
	"github.com/spotifyclient/gosptok/internal/mercury"
	"github.com/spotifyclient/gosptok/internal/metrics"
	"github.com/spotifyclient/gosptok/internal/session"
	"github.com/spotifyclient/gosptok/internal/spclient"
	"github.com/spotifyclient/gosptok/internal/spotifyid"
	"github.com/spotifyclient/gosptok/internal/token"
	"github.com/spotifyclient/gosptok/internal/workerpool"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "sptok-probe",
		Short:   "A protocol-level probe client for Spotify's access point",
		Version: Version,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "auth", Title: "Authentication:"})
	rootCmd.AddGroup(&cobra.Group{ID: "media", Title: "Media:"})

	login := loginCmd()
	login.GroupID = "auth"
	rootCmd.AddCommand(login)

	whoami := whoamiCmd()
	whoami.GroupID = "auth"
	rootCmd.AddCommand(whoami)

	play := playCmd()
	play.GroupID = "media"
	rootCmd.AddCommand(play)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// storedCredentials is the on-disk JSON shape of the reusable login blob,
// kept separate from config.AuthConfig since it holds a secret rather than
// a setting.
type storedCredentials struct {
	Username string `json:"username"`
	AuthData []byte `json:"auth_data"`
}

func loadStoredCredentials(path string) (session.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Credentials{}, fmt.Errorf("reading credentials cache: %w", err)
	}
	var sc storedCredentials
	if err := json.Unmarshal(data, &sc); err != nil {
		return session.Credentials{}, fmt.Errorf("parsing credentials cache: %w", err)
	}
	return session.Credentials{
		Typ:      session.AuthStoredSpotifyCredentials,
		Username: sc.Username,
		AuthData: sc.AuthData,
	}, nil
}

func saveStoredCredentials(path string, username string, authData []byte) error {
	sc := storedCredentials{Username: username, AuthData: authData}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// deviceInfo builds the session.DeviceInfo the access point identifies this
// client with. A configured device.id is used as is; otherwise the device id
// is loaded (or created, on first run) from a file stored alongside the
// credentials cache, reusing a mesh agent's own identity-persistence idiom
// for a 16-byte id.
func deviceInfo(cfg *config.Config) (session.DeviceInfo, identity.AgentID, error) {
	var id identity.AgentID
	var err error
	if cfg.Device.ID != "" {
		if id, err = identity.ParseAgentID(cfg.Device.ID); err != nil {
			return session.DeviceInfo{}, identity.AgentID{}, fmt.Errorf("parsing device.id: %w", err)
		}
	} else {
		dataDir := filepath.Dir(cfg.Auth.CredentialsPath)
		if dataDir == "" {
			dataDir = "."
		}
		if id, _, err = identity.LoadOrCreate(dataDir); err != nil {
			return session.DeviceInfo{}, identity.AgentID{}, fmt.Errorf("loading device id: %w", err)
		}
	}
	return session.DeviceInfo{
		DeviceID:   id,
		DeviceName: cfg.Device.Name,
		BuildInfo:  "sptok-probe/" + Version,
	}, id, nil
}

func resolveAccessPoint(ctx context.Context, cfg *config.Config) func() (string, error) {
	return func() (string, error) {
		if cfg.Connect.AccessPointOverride != "" {
			return cfg.Connect.AccessPointOverride, nil
		}
		return spclient.NewResolver().Resolve(ctx, spclient.KindAccessPoint)
	}
}

// dialSession resolves an access point (or uses the configured override)
// and connects with the given credentials. No Mercury or audio-key
// handlers are wired; it is enough for login/whoami.
func dialSession(ctx context.Context, cfg *config.Config, creds session.Credentials) (*session.Session, error) {
	device, _, err := deviceInfo(cfg)
	if err != nil {
		return nil, err
	}

	sessCfg := session.DefaultConfig(device, resolveAccessPoint(ctx, cfg))
	if cfg.Connect.HandshakeTimeout > 0 {
		sessCfg.HandshakeTimeout = cfg.Connect.HandshakeTimeout
	}

	sess := session.New(sessCfg, creds)
	if err := sess.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to access point: %w", err)
	}
	return sess, nil
}

// sessionSender forwards Send calls to a *session.Session assigned after
// construction, breaking the circular dependency between the session
// (which needs the audio-key/mercury handlers in its Config before it
// exists) and those handlers (which need the session as their sender).
// Same forward-reference idiom as the CDN fetcher/stream wiring.
type sessionSender struct {
	sess *session.Session
}

func (p *sessionSender) Send(cmd byte, payload []byte) error { return p.sess.Send(cmd, payload) }

// dialSessionWithMercury is dialSession plus a wired audiokey.Manager and
// mercury.Client, for commands that need metadata/storage/key access in
// addition to the bare connection. Mercury event callbacks are dispatched
// through a small worker pool instead of the receive loop's own goroutine,
// so a slow subscriber does not run on the receive loop; once the pool's
// job queue is full, dispatch blocks the receive loop until a slot frees.
func dialSessionWithMercury(ctx context.Context, cfg *config.Config, creds session.Credentials, m *metrics.Metrics) (*session.Session, *audiokey.Manager, *mercury.Client, *workerpool.Pool, error) {
	device, _, err := deviceInfo(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	proxy := &sessionSender{}
	keys := audiokey.NewManager(proxy)
	dispatch := workerpool.New(4, 64)
	mercuryClient := mercury.NewClient(proxy, dispatch.Submit)

	sessCfg := session.DefaultConfig(device, resolveAccessPoint(ctx, cfg))
	if cfg.Connect.HandshakeTimeout > 0 {
		sessCfg.HandshakeTimeout = cfg.Connect.HandshakeTimeout
	}
	sessCfg.OnPacket = func(cmd byte, payload []byte) { _ = keys.HandlePacket(cmd, payload) }
	sessCfg.MercuryHandler = mercuryClient.HandlePacket

	sess := session.New(sessCfg, creds)
	proxy.sess = sess

	start := time.Now()
	if err := sess.Connect(); err != nil {
		m.RecordHandshakeError("connect_failed")
		dispatch.Stop()
		return nil, nil, nil, nil, fmt.Errorf("connecting to access point: %w", err)
	}
	m.RecordHandshake(time.Since(start).Seconds())
	m.RecordSessionConnect()
	return sess, keys, mercuryClient, dispatch, nil
}

func loginCmd() *cobra.Command {
	var configPath string
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and cache reusable credentials",
		Long:  "Log in with a username and password, then persist the reusable credential blob so future commands can skip interactive login.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				cfg = config.Default()
			}
			if username == "" {
				username = cfg.Auth.Username
			}
			if username == "" {
				return fmt.Errorf("login: --username is required (or set auth.username in config)")
			}

			fmt.Print("Password: ")
			pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			sess, err := dialSession(ctx, cfg, session.Credentials{
				Typ:      session.AuthUserPass,
				Username: username,
				Password: string(pwBytes),
			})
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := saveStoredCredentials(cfg.Auth.CredentialsPath, sess.Username(), sess.ReusableCredentials()); err != nil {
				return fmt.Errorf("saving credentials cache: %w", err)
			}

			fmt.Printf("Logged in as %s. Credentials cached at %s\n", sess.Username(), cfg.Auth.CredentialsPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Spotify username")

	return cmd
}

func whoamiCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity of the cached credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				cfg = config.Default()
			}

			creds, err := loadStoredCredentials(cfg.Auth.CredentialsPath)
			if err != nil {
				return fmt.Errorf("whoami: no cached login, run 'sptok-probe login' first: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			sess, err := dialSession(ctx, cfg, creds)
			if err != nil {
				return err
			}
			defer sess.Close()

			fmt.Printf("Username:     %s\n", sess.Username())
			fmt.Printf("Country:      %s\n", sess.CountryCode())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	return cmd
}

func qualityFromString(s string) spotifyid.Quality {
	switch s {
	case "normal":
		return spotifyid.QualityNormal
	case "very_high":
		return spotifyid.QualityVeryHigh
	case "lossless":
		return spotifyid.QualityLossless
	default:
		return spotifyid.QualityHigh
	}
}

func playCmd() *cobra.Command {
	var configPath string
	var outPath string

	cmd := &cobra.Command{
		Use:   "play <spotify-uri>",
		Short: "Open a track or episode's audio stream and save it to a file",
		Long:  "Resolves a spotify:track:... or spotify:episode:... URI through metadata, quality selection, storage-resolve, and the CDN, then drains the decrypted stream to --out.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				cfg = config.Default()
			}

			id, err := spotifyid.FromURI(args[0])
			if err != nil {
				return fmt.Errorf("play: %w", err)
			}

			creds, err := loadStoredCredentials(cfg.Auth.CredentialsPath)
			if err != nil {
				return fmt.Errorf("play: no cached login, run 'sptok-probe login' first: %w", err)
			}

			logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			m := metrics.NewMetrics()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			sess, keys, mercuryClient, dispatch, err := dialSessionWithMercury(ctx, cfg, creds, m)
			if err != nil {
				return err
			}
			defer func() {
				sess.Close()
				dispatch.Stop()
				m.RecordSessionDisconnect("play_complete")
			}()

			resolver := spclient.NewResolver()
			spHost, err := resolver.Resolve(ctx, spclient.KindSpclient)
			if err != nil {
				return fmt.Errorf("resolving spclient host: %w", err)
			}

			_, deviceID, err := deviceInfo(cfg)
			if err != nil {
				return err
			}
			tokens := token.NewProvider(mercuryClient, cfg.Device.ClientID, hex.EncodeToString(deviceID[:]))
			spClient := spclient.NewClient(spHost, cfg.Device.ClientID, tokens)

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			f := feeder.New(spClient, keys, nil, rng, logger)

			quality := qualityFromString(cfg.Audio.Quality)
			super := feeder.SuperAudioVorbis
			if cfg.Audio.PreferFormat == "flac" {
				super = feeder.SuperAudioLossless
			}

			loadStart := time.Now()
			var loaded *feeder.LoadedStream
			if id.Kind == spotifyid.KindEpisode {
				loaded, err = f.LoadEpisode(ctx, id, quality, super)
			} else {
				loaded, err = f.LoadTrack(ctx, id, quality, super)
			}
			if err != nil {
				return fmt.Errorf("play: %w", err)
			}
			m.RecordStreamOpen(time.Since(loadStart).Seconds())
			defer func() {
				loaded.Close()
				m.RecordStreamClose()
			}()

			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer out.Close()

			buf := make([]byte, cdn.ChunkSize)
			var written int64
			for {
				n, readErr := loaded.Stream.ReadInto(buf)
				if n > 0 {
					if _, werr := out.Write(buf[:n]); werr != nil {
						return werr
					}
					written += int64(n)
				}
				if readErr != nil {
					break
				}
			}

			fmt.Printf("Wrote %d bytes to %s (format %v)\n", written, outPath, loaded.Metrics.Format)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "out.audio", "Output file for the decrypted stream")

	return cmd
}
