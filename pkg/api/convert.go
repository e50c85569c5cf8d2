package api

import (
	"github.com/MalteJ/mvirt/pkg/api/types"
	"github.com/MalteJ/mvirt/pkg/models"
)

func convertConfigToModel(cfg types.VmConfig) models.VMConfig {
	disks := make([]models.DiskConfig, 0, len(cfg.Disks))
	for _, d := range cfg.Disks {
		disks = append(disks, models.DiskConfig{Path: d.Path, ReadOnly: d.ReadOnly})
	}

	nics := make([]models.NicConfig, 0, len(cfg.Nics))
	for _, n := range cfg.Nics {
		nics = append(nics, models.NicConfig{NicID: n.NicID})
	}

	var cloudInit *models.CloudInitConfig
	if cfg.CloudInit != nil {
		cloudInit = &models.CloudInitConfig{
			UserData:      cfg.CloudInit.UserData,
			MetaData:      cfg.CloudInit.MetaData,
			NetworkConfig: cfg.CloudInit.NetworkConfig,
		}
	}

	return models.VMConfig{
		VCPUs:      cfg.VCPUs,
		MemoryMB:   cfg.MemoryMB,
		Kernel:     cfg.Kernel,
		KernelArgs: cfg.KernelArgs,
		Disks:      disks,
		Nics:       nics,
		CloudInit:  cloudInit,
	}
}

func convertConfigToProto(cfg models.VMConfig) types.VmConfig {
	disks := make([]types.Disk, 0, len(cfg.Disks))
	for _, d := range cfg.Disks {
		disks = append(disks, types.Disk{Path: d.Path, ReadOnly: d.ReadOnly})
	}

	nics := make([]types.Nic, 0, len(cfg.Nics))
	for _, n := range cfg.Nics {
		nics = append(nics, types.Nic{NicID: n.NicID})
	}

	var cloudInit *types.CloudInit
	if cfg.CloudInit != nil {
		cloudInit = &types.CloudInit{
			UserData:      cfg.CloudInit.UserData,
			MetaData:      cfg.CloudInit.MetaData,
			NetworkConfig: cfg.CloudInit.NetworkConfig,
		}
	}

	return types.VmConfig{
		VCPUs:      cfg.VCPUs,
		MemoryMB:   cfg.MemoryMB,
		Kernel:     cfg.Kernel,
		KernelArgs: cfg.KernelArgs,
		Disks:      disks,
		Nics:       nics,
		CloudInit:  cloudInit,
	}
}

func convertVMToProto(vm *models.VM) *types.Vm {
	out := &types.Vm{
		ID:            vm.ID.String(),
		Name:          vm.Name,
		ProjectID:     vm.ProjectID,
		State:         string(vm.State),
		Config:        convertConfigToProto(vm.Config),
		CreatedAtUnix: vm.CreatedAt.Unix(),
	}

	if !vm.StartedAt.IsZero() {
		out.StartedAtUnix = vm.StartedAt.Unix()
	}

	return out
}
