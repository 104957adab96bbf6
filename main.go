/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// nanoredis is an in-memory, multi-shard, RESP-protocol key/value store.
// This is the server process entry point: it parses flags into a
// server.Config, starts a shard.Registry, restores the last snapshot (if
// any) through a snapshot.Controller, and serves RESP connections until a
// signal or SHUTDOWN command tears it back down.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/launix-de/nanoredis/server"
	"github.com/launix-de/nanoredis/shard"
	"github.com/launix-de/nanoredis/snapshot"
	"github.com/launix-de/nanoredis/store"
)

func nowMs() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

func main() {
	fmt.Print(`nanoredis Copyright (C) 2023-2026  Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	cfg := &server.Config{}
	fs := flag.NewFlagSet("nanoredis", flag.ExitOnError)
	maxMemRaw := cfg.RegisterFlags(fs)

	// Extra startup-only flags for the non-file save backends: these feed a
	// Backend constructed once at boot, so unlike Config's own fields they
	// have no CONFIG GET/SET entry of their own.
	s3Bucket := fs.String("s3_bucket", "", "S3 bucket for --save_backend=s3")
	s3Region := fs.String("s3_region", "", "S3 region for --save_backend=s3")
	s3Endpoint := fs.String("s3_endpoint", "", "S3-compatible endpoint URL for --save_backend=s3")
	s3AccessKey := fs.String("s3_access_key_id", "", "S3 access key id for --save_backend=s3")
	s3SecretKey := fs.String("s3_secret_access_key", "", "S3 secret access key for --save_backend=s3")
	s3ForcePathStyle := fs.Bool("s3_force_path_style", false, "use path-style S3 addressing (needed by most non-AWS S3 endpoints)")
	cephPool := fs.String("ceph_pool", "", "Ceph pool for --save_backend=ceph")
	cephConf := fs.String("ceph_conf", "/etc/ceph/ceph.conf", "Ceph config file for --save_backend=ceph")
	cephUser := fs.String("ceph_user", "client.admin", "Ceph username for --save_backend=ceph")
	cephCluster := fs.String("ceph_cluster", "ceph", "Ceph cluster name for --save_backend=ceph")
	loadOnly := fs.Bool("load_only", false, "load the snapshot, print key counts, and exit without serving")

	fs.Parse(os.Args[1:])
	if err := cfg.ParseMaxMemory(*maxMemRaw); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	backend, err := buildBackend(cfg, backendFlags{
		s3Bucket: *s3Bucket, s3Region: *s3Region, s3Endpoint: *s3Endpoint,
		s3AccessKey: *s3AccessKey, s3SecretKey: *s3SecretKey, s3ForcePathStyle: *s3ForcePathStyle,
		cephPool: *cephPool, cephConf: *cephConf, cephUser: *cephUser, cephCluster: *cephCluster,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	const numDBs = 16
	registry := shard.NewRegistry(cfg.NumShards, nowMs, shard.DefaultQueueCapacity, time.Second, 20)

	log := server.NewLogger()
	snap := &snapshot.Controller{
		Backend:     backend,
		Compression: snapshot.Compression(cfg.SnapshotCompression),
		NumDBs:      numDBs,
		Log:         func(format string, args ...any) { log.Infof(format, args...) },
	}

	if err := snap.Load(registry); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load snapshot: %v\n", err)
	}

	if *loadOnly {
		var total int
		for i := 0; i < registry.NumShards(); i++ {
			n, _ := shard.RunOn(registry.Shard(i), func(db *store.Database) int {
				count := 0
				db.ForEachSlot(func(int) { count += db.KeyCount() })
				return count
			})
			total += n
		}
		fmt.Printf("loaded snapshot: %d keys across %d shards\n", total, registry.NumShards())
		return
	}

	srv := server.New(cfg, registry, snap, nowMs)

	if cfg.AdminWSPort != 0 {
		go func() {
			if err := srv.ListenAndServeAdmin(cfg.AdminWSPort); err != nil {
				log.Errorf("admin websocket server stopped: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("received shutdown signal")
		srv.RequestShutdown(true)
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}

type backendFlags struct {
	s3Bucket, s3Region, s3Endpoint, s3AccessKey, s3SecretKey string
	s3ForcePathStyle                                         bool
	cephPool, cephConf, cephUser, cephCluster                string
}

// buildBackend selects the snapshot.Backend named by --save_backend. "file"
// (the default) needs nothing beyond --save_path; "s3" and "ceph" pull
// their remaining settings from the extra flags above rather than
// overloading --save_path with a URI, since both backends need several
// independent settings (credentials, pool, region) a single string can't
// carry cleanly.
func buildBackend(cfg *server.Config, f backendFlags) (snapshot.Backend, error) {
	switch cfg.SaveBackend {
	case "", "file":
		return &snapshot.FileBackend{Path: cfg.SavePath}, nil
	case "s3":
		if f.s3Bucket == "" {
			return nil, fmt.Errorf("--save_backend=s3 requires --s3_bucket")
		}
		return &snapshot.S3Backend{
			AccessKeyID:     f.s3AccessKey,
			SecretAccessKey: f.s3SecretKey,
			Region:          f.s3Region,
			Endpoint:        f.s3Endpoint,
			Bucket:          f.s3Bucket,
			Key:             cfg.SavePath,
			ForcePathStyle:  f.s3ForcePathStyle,
		}, nil
	case "ceph":
		if f.cephPool == "" {
			return nil, fmt.Errorf("--save_backend=ceph requires --ceph_pool")
		}
		return &snapshot.CephBackend{
			UserName:    f.cephUser,
			ClusterName: f.cephCluster,
			ConfFile:    f.cephConf,
			Pool:        f.cephPool,
			Key:         cfg.SavePath,
		}, nil
	default:
		return nil, fmt.Errorf("unknown --save_backend %q (want file, s3 or ceph)", cfg.SaveBackend)
	}
}
