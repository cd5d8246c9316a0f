// Package vulkan implements the gpu interfaces on top of vkngwrapper.
package vulkan

import (
	"context"
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/logging"
)

var ValidationLayers = []string{"VK_LAYER_KHRONOS_validation"}

type InstanceOptions struct {
	ApplicationName string
	// Extensions are required instance extensions, usually the ones the
	// window system needs for surfaces.
	Extensions []string
	// Validation enables the validation layers and forwards their messages
	// to Logger.
	Validation bool
	Logger     *slog.Logger
}

type Instance struct {
	global   core1_0.GlobalDriver
	driver   core1_0.CoreInstanceDriver
	surfaces khr_surface.ExtensionDriver

	debug     ext_debug_utils.ExtensionDriver
	messenger ext_debug_utils.DebugUtilsMessenger

	logger *slog.Logger
}

var _ gpu.Instance = (*Instance)(nil)

// NewInstance loads Vulkan through procAddr (vkGetInstanceProcAddr) and
// creates an instance. Portability enumeration is enabled when the loader
// offers it.
func NewInstance(procAddr unsafe.Pointer, opts InstanceOptions) (*Instance, error) {
	logger := logging.Or(opts.Logger)

	global, err := core.CreateDriverFromProcAddr(procAddr)
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}

	info := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "minirender",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	available, _, err := global.AvailableExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate instance extensions")
	}
	for _, ext := range opts.Extensions {
		if _, ok := available[ext]; !ok {
			return nil, errors.Newf("missing instance extension %s", ext)
		}
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext)
	}

	if _, ok := available[khr_portability_enumeration.ExtensionName]; ok {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	inst := &Instance{global: global, logger: logger}

	if opts.Validation {
		layers, _, err := global.AvailableLayers()
		if err != nil {
			return nil, errors.Wrap(err, "enumerate instance layers")
		}
		for _, layer := range ValidationLayers {
			if _, ok := layers[layer]; !ok {
				return nil, errors.Newf("validation layer %s not available, install the Vulkan SDK", layer)
			}
			info.EnabledLayerNames = append(info.EnabledLayerNames, layer)
		}
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		info.Next = inst.messengerInfo()
	}

	inst.driver, _, err = global.CreateInstance(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create instance")
	}
	inst.surfaces = khr_surface.CreateExtensionDriverFromCoreDriver(inst.driver)

	if opts.Validation {
		inst.debug = ext_debug_utils.CreateExtensionDriverFromCoreDriver(inst.driver)
		inst.messenger, _, err = inst.debug.CreateDebugUtilsMessenger(nil, inst.messengerInfo())
		if err != nil {
			inst.driver.DestroyInstance(nil)
			return nil, errors.Wrap(err, "create debug messenger")
		}
	}

	logger.Info("vulkan instance created",
		slog.Bool("validation", opts.Validation),
		slog.Any("extensions", info.EnabledExtensionNames))
	return inst, nil
}

func (i *Instance) messengerInfo() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityInfo,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    i.logDebug,
	}
}

func (i *Instance) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	i.logger.Log(context.Background(), severityLevel(severity), data.Message,
		slog.Any("type", msgType))
	return false
}

func severityLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func (i *Instance) PhysicalDevices() ([]gpu.PhysicalDevice, error) {
	handles, _, err := i.driver.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}

	devices := make([]gpu.PhysicalDevice, 0, len(handles))
	for _, handle := range handles {
		devices = append(devices, &PhysicalDevice{instance: i, handle: handle})
	}
	return devices, nil
}

// CreateSDLSurface creates a presentation surface for window. The window
// must outlive the surface.
func (i *Instance) CreateSDLSurface(window *sdl.Window) (*Surface, error) {
	handle, err := vkng_sdl2.CreateSurface(i.driver.Instance(), i.surfaces, window)
	if err != nil {
		return nil, errors.Wrap(err, "create SDL surface")
	}
	return &Surface{instance: i, handle: handle}, nil
}

// Destroy releases the debug messenger and the instance. Every surface and
// device created from it must already be destroyed.
func (i *Instance) Destroy() {
	if i.debug != nil {
		i.debug.DestroyDebugUtilsMessenger(i.messenger, nil)
		i.debug = nil
	}
	if i.driver != nil {
		i.driver.DestroyInstance(nil)
		i.driver = nil
	}
}
