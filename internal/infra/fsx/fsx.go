package fsx

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Remplaçable en test pour simuler un échec de rename.
var renameFunc = os.Rename

// WriteFileAtomic remplace path par data (fichier temporaire dans le même dossier + rename).
// Un lecteur concurrent voit soit l'ancien contenu, soit le nouveau.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return writeAtomic(path, perm, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	})
}

// WriteStreamAtomic copie r vers path de façon atomique et renvoie le nombre d'octets écrits.
// Si r échoue en cours de route, path n'est jamais créé.
func WriteStreamAtomic(path string, r io.Reader, perm os.FileMode) (int64, error) {
	var written int64
	err := writeAtomic(path, perm, func(w io.Writer) (int64, error) {
		n, err := io.Copy(w, r)
		written = n
		return n, err
	})
	return written, err
}

// WriteLinesAtomic écrit une ligne par entrée, chacune terminée par '\n'.
func WriteLinesAtomic(path string, lines []string, perm os.FileMode) error {
	return writeAtomic(path, perm, func(w io.Writer) (int64, error) {
		bw := bufio.NewWriter(w)
		var n int64
		for _, l := range lines {
			k, err := bw.WriteString(l + "\n")
			n += int64(k)
			if err != nil {
				return n, err
			}
		}
		return n, bw.Flush()
	})
}

func writeAtomic(path string, perm os.FileMode, fill func(io.Writer) (int64, error)) error {
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// préfixe '.': absent du manifeste tant qu'il n'est pas renommé; IsTemp le reconnaît s'il reste.
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := fill(tmp); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := renameFunc(tmpName, path); err != nil {
		return err
	}

	_ = syncDirBestEffort(dir)
	return nil
}

// IsTemp reconnaît les fichiers temporaires laissés par un arrêt brutal.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}

func syncDirBestEffort(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
