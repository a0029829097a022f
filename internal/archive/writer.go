package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/zeebo/blake3"

	"strata/internal/ir"
	"strata/internal/metadata"
	"strata/internal/trace"
)

var (
	// ErrIRNotImplemented is returned by the IR half of an archive round trip.
	ErrIRNotImplemented = errors.New("archive: IR deserialization is not implemented")
	// ErrOutputLocked is returned when another writer holds the output lock.
	ErrOutputLocked = errors.New("archive output is locked")
)

const lockRetryDelay = 50 * time.Millisecond

// Library is everything written into one archive.
type Library struct {
	Name            string
	Descriptor      *metadata.ModuleDescriptor
	Module          *ir.Module
	CompilerVersion string
	// MetadataVersion is written into the envelope; zero selects
	// metadata.CurrentVersion.
	MetadataVersion metadata.Version
	// Table holds the addresses already used by Descriptor. A nil table is
	// created from Module.
	Table *DeclarationTable
	// Verify, if set, inspects the complete staged archive before it
	// replaces the previous one. Its error is returned as is.
	Verify func(staged Layout) error
}

// fileWritten is called after each staged file; tests use it to cancel
// mid-write.
var fileWritten func(path string)

// rename is os.Rename; tests swap it to fail a publish step.
var rename = os.Rename

// Write builds the archive of lib under out/<lib.Name>. The previous archive,
// if any, is replaced only after the new one is complete and has passed
// lib.Verify. A cancelled ctx, a failed write or a rejected staging directory
// leaves the previous state untouched.
func Write(ctx context.Context, out string, lib *Library) (layout Layout, err error) {
	if lib == nil || lib.Name == "" || lib.Descriptor == nil || lib.Module == nil {
		return Layout{}, fmt.Errorf("archive: incomplete library")
	}
	ctx, span := trace.Start(ctx, trace.ScopePhase, "archive")
	span.WithExtra("library", lib.Name)
	defer func() { span.End(errString(err)) }()

	if err = os.MkdirAll(out, 0o750); err != nil {
		return Layout{}, fmt.Errorf("archive: create output dir: %w", err)
	}
	lock := flock.New(lockPath(out, lib.Name))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return Layout{}, fmt.Errorf("archive %s: lock: %w", lib.Name, err)
	}
	if !locked {
		return Layout{}, fmt.Errorf("archive %s: %w", lib.Name, ErrOutputLocked)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("archive %s: unlock: %w", lib.Name, uerr)
		}
	}()

	staging, err := os.MkdirTemp(out, "."+lib.Name+".staging-")
	if err != nil {
		return Layout{}, fmt.Errorf("archive %s: staging: %w", lib.Name, err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging)
		}
	}()

	stage := Layout{Dir: staging, Name: lib.Name}
	if err = writeStaged(ctx, stage, lib); err != nil {
		return Layout{}, err
	}
	if lib.Verify != nil {
		if err = lib.Verify(stage); err != nil {
			return Layout{}, err
		}
	}
	if err = ctx.Err(); err != nil {
		return Layout{}, err
	}

	layout = NewLayout(out, lib.Name)
	if err = publish(staging, layout.Dir); err != nil {
		return Layout{}, fmt.Errorf("archive %s: publish: %w", lib.Name, err)
	}
	trace.Point(trace.FromContext(ctx), trace.ScopeDetail, "archive published", layout.Dir, span.ID())
	return layout, nil
}

// publish moves staging to dir. A previous dir is moved aside first and put
// back if staging cannot take its place.
func publish(staging, dir string) error {
	aside := staging + ".previous"
	_, err := os.Lstat(dir)
	switch {
	case err == nil:
		if err := rename(dir, aside); err != nil {
			return fmt.Errorf("move previous aside: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		aside = ""
	default:
		return err
	}
	if err := rename(staging, dir); err != nil {
		if aside != "" {
			if rerr := rename(aside, dir); rerr != nil {
				return errors.Join(err, fmt.Errorf("restore previous: %w", rerr))
			}
		}
		return err
	}
	if aside != "" {
		_ = os.RemoveAll(aside)
	}
	return nil
}

func writeStaged(ctx context.Context, l Layout, lib *Library) error {
	if err := os.MkdirAll(filepath.Join(l.Dir, IRDir), 0o750); err != nil {
		return fmt.Errorf("archive %s: %w", lib.Name, err)
	}
	put := func(path string, data []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("archive %s: write %s: %w", lib.Name, filepath.Base(path), err)
		}
		if fileWritten != nil {
			fileWritten(path)
		}
		return nil
	}

	env, err := metadata.Serialize(lib.Descriptor, nil)
	if err != nil {
		return fmt.Errorf("archive %s: %w", lib.Name, err)
	}
	if v := lib.MetadataVersion; v != (metadata.Version{}) {
		if !v.IsCompatible() {
			return fmt.Errorf("archive %s: metadata version %s is not supported", lib.Name, v)
		}
		env.Version = v
	}
	meta, err := metadata.Encode(env)
	if err != nil {
		return fmt.Errorf("archive %s: %w", lib.Name, err)
	}
	if err := put(l.Metadata(), meta); err != nil {
		return err
	}

	table := lib.Table
	if table == nil {
		table = NewDeclarationTable(lib.Module)
	}
	table.AssignAll()
	for _, id := range table.Entries() {
		rec, err := recordDecl(lib.Module, table, id)
		if err != nil {
			return err
		}
		blob, err := EncodeBlob(rec)
		if err != nil {
			return fmt.Errorf("archive %s: %s: %w", lib.Name, lib.Module.Decl(id).Name, err)
		}
		if err := put(l.Decl(rec.UniqID), blob); err != nil {
			return err
		}
	}
	blob, err := EncodeBlob(recordModule(lib.Module, table))
	if err != nil {
		return fmt.Errorf("archive %s: module record: %w", lib.Name, err)
	}
	if err := put(l.ModuleIR(), blob); err != nil {
		return err
	}

	var dump bytes.Buffer
	if err := ir.DumpModule(&dump, lib.Module, ir.DumpOptions{Positions: true}); err != nil {
		return fmt.Errorf("archive %s: debug dump: %w", lib.Name, err)
	}
	if err := put(l.Debug(), dump.Bytes()); err != nil {
		return err
	}

	// манифест последним: его наличие означает, что архив полный
	manifest := &Manifest{
		UniqueName:      lib.Name,
		CompilerVersion: lib.CompilerVersion,
		MetadataVersion: env.Version.String(),
		MetadataBlake3:  Digest(meta),
	}
	return put(l.Manifest(), manifest.Encode())
}

// Digest is the hex blake3 digest recorded in the manifest.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
