// Package cloudinit synthesizes the cloud-init ISO consumed by a VM at
// first boot from the user-data/meta-data/network-config carried in a VM's
// frozen config.
package cloudinit

import (
	"io"
	"os"
	"path"
	"strings"

	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/iso9660"

	"github.com/MalteJ/mvirt/pkg/models"
)

const volumeLabel = "cidata"

// entry is one file written into the cloud-init ISO's NoCloud layout.
type entry struct {
	name string
	data string
}

// Required reports whether cfg carries any payload worth synthesizing an
// ISO for. A VM with no cloud-init config boots with no cidata volume.
func Required(cfg *models.CloudInitConfig) bool {
	return cfg != nil && (cfg.UserData != "" || cfg.MetaData != "" || cfg.NetworkConfig != "")
}

// Write renders cfg as a NoCloud-format ISO9660 image at isoPath, replacing
// any prior file there.
func Write(isoPath string, cfg *models.CloudInitConfig) error {
	entries := []entry{
		{name: "user-data", data: withHeader(cfg.UserData)},
		{name: "meta-data", data: cfg.MetaData},
	}

	if cfg.NetworkConfig != "" {
		entries = append(entries, entry{name: "network-config", data: cfg.NetworkConfig})
	}

	if err := os.RemoveAll(isoPath); err != nil {
		return err
	}

	isoFile, err := os.Create(isoPath)
	if err != nil {
		return err
	}
	defer isoFile.Close()

	workdir, err := os.MkdirTemp("", "mvirt-cidata")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workdir)

	fs, err := iso9660.Create(isoFile, 0, 0, 0, workdir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if _, err := writeFile(fs, e.name, strings.NewReader(e.data)); err != nil {
			return err
		}
	}

	if err := fs.Finalize(iso9660.FinalizeOptions{VolumeIdentifier: volumeLabel}); err != nil {
		return err
	}

	return isoFile.Close()
}

func writeFile(fs filesystem.FileSystem, name string, r io.Reader) (int64, error) {
	if dir := path.Dir(name); dir != "" && dir != "/" && dir != "." {
		if err := fs.Mkdir(dir); err != nil {
			return 0, err
		}
	}

	f, err := fs.OpenFile(name, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return io.Copy(f, r)
}

// withHeader prepends the "#cloud-config" shebang cloud-init requires to
// identify the user-data format, unless the caller already supplied one.
func withHeader(userData string) string {
	if userData == "" {
		return "#cloud-config\n"
	}

	if strings.HasPrefix(userData, "#cloud-config") || strings.HasPrefix(userData, "#!") {
		return userData
	}

	return "#cloud-config\n" + userData
}
