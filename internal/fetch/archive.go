package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/manifest"
)

// fetchArchive materializes an archive source: cache hit on the declared
// digest extracts straight from the cache; otherwise the archive is
// downloaded once (coalesced across concurrent callers), verified against
// the digest, and stored under it.
func (f *Fetcher) fetchArchive(ctx context.Context, module string, src *manifest.Source, destDir string) error {
	logger := ctxlog.FromContext(ctx)

	blob, err := f.cachePath("archives", src.SHA256)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(blob); statErr == nil {
		logger.Debug("Archive cache hit.", "module", module, "sha256", src.SHA256)
	} else {
		// First fetch wins; concurrent fetches of the same digest share
		// one in-flight download.
		_, err, _ := f.group.Do(src.SHA256, func() (any, error) {
			if _, statErr := os.Stat(blob); statErr == nil {
				return nil, nil
			}
			return nil, f.download(ctx, module, src, blob)
		})
		if err != nil {
			return err
		}
	}

	return extractArchive(module, blob, archiveFormat(src.URL), destDir)
}

// download streams the archive to a temp file while hashing it, then commits
// it into the cache only if the digest matches the declaration.
func (f *Fetcher) download(ctx context.Context, module string, src *manifest.Source, blob string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Downloading archive.", "module", module, "url", src.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return &FetchError{Module: module, URL: src.URL, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchError{Module: module, URL: src.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &FetchError{Module: module, URL: src.URL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(blob), ".download-*")
	if err != nil {
		return fmt.Errorf("module %q: failed to create download temp file: %w", module, err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		tmp.Close()
		return &FetchError{Module: module, URL: src.URL, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("module %q: failed to finish download: %w", module, err)
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != src.SHA256 {
		return &IntegrityError{Module: module, URL: src.URL, Want: src.SHA256, Got: got}
	}

	if err := os.Rename(tmp.Name(), blob); err != nil {
		return fmt.Errorf("module %q: failed to commit archive to cache: %w", module, err)
	}
	logger.Debug("Archive cached.", "module", module, "sha256", src.SHA256)
	return nil
}

// archiveFormat sniffs the archive format from the URL's trailing extension.
func archiveFormat(url string) string {
	switch {
	case strings.HasSuffix(url, ".tar.gz"), strings.HasSuffix(url, ".tgz"):
		return "tar.gz"
	case strings.HasSuffix(url, ".tar.bz2"):
		return "tar.bz2"
	case strings.HasSuffix(url, ".tar.xz"):
		return "tar.xz"
	case strings.HasSuffix(url, ".tar"):
		return "tar"
	case strings.HasSuffix(url, ".zip"):
		return "zip"
	default:
		return ""
	}
}

// extractArchive unpacks a cached blob into destDir. Archives whose entries
// all live under a single top-level directory are stripped of it, matching
// the usual release-tarball layout.
func extractArchive(module, blob, format, destDir string) error {
	staging, err := os.MkdirTemp(filepath.Dir(destDir), ".extract-*")
	if err != nil {
		return fmt.Errorf("module %q: failed to create extraction dir: %w", module, err)
	}
	defer os.RemoveAll(staging)

	switch format {
	case "tar", "tar.gz", "tar.bz2", "tar.xz":
		if err := extractTar(blob, format, staging); err != nil {
			return fmt.Errorf("module %q: %w", module, err)
		}
	case "zip":
		if err := extractZip(blob, staging); err != nil {
			return fmt.Errorf("module %q: %w", module, err)
		}
	default:
		return fmt.Errorf("module %q: unsupported archive format for %s", module, blob)
	}

	root := staging
	entries, err := os.ReadDir(staging)
	if err != nil {
		return fmt.Errorf("module %q: %w", module, err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		root = filepath.Join(staging, entries[0].Name())
	}
	return copyTree(root, destDir)
}

func extractTar(blob, format, destDir string) error {
	file, err := os.Open(blob)
	if err != nil {
		return err
	}
	defer file.Close()

	var reader io.Reader = file
	switch format {
	case "tar.gz":
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("bad gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "tar.bz2":
		reader = bzip2.NewReader(file)
	case "tar.xz":
		xzr, err := xz.NewReader(file)
		if err != nil {
			return fmt.Errorf("bad xz stream: %w", err)
		}
		reader = xzr
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("bad tar stream: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			// A link target escaping the extraction root would let a
			// later entry write through it, past safeJoin.
			if err := checkLinkTarget(destDir, target, hdr.Linkname); err != nil {
				return fmt.Errorf("archive entry %q: %w", hdr.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			// Hard links, devices etc. do not appear in release tarballs
			// we consume; skip them rather than failing the whole fetch.
		}
	}
}

func extractZip(blob, destDir string) error {
	zr, err := zip.OpenReader(blob)
	if err != nil {
		return fmt.Errorf("bad zip archive: %w", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target, err := safeJoin(destDir, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		in, err := entry.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, entry.Mode()&0o777)
		if err != nil {
			in.Close()
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			in.Close()
			out.Close()
			return err
		}
		in.Close()
		if err := out.Close(); err != nil {
			return err
		}
	}
	return nil
}

// checkLinkTarget rejects symlink targets that resolve outside root:
// absolute targets and relative ones that climb above it.
func checkLinkTarget(root, linkPath, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("absolute symlink target %q", linkname)
	}
	resolved := filepath.Join(filepath.Dir(linkPath), linkname)
	if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return fmt.Errorf("symlink target %q escapes extraction root", linkname)
	}
	return nil
}

// safeJoin joins an archive entry name under root, rejecting names that
// would escape it.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction root", name)
	}
	return target, nil
}
