package gpu

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_subset"
	"github.com/vkngwrapper/extensions/khr_swapchain"
)

// StorageBufferStorageClassExtension lets shaders declare std430 storage buffers
// through the StorageBuffer storage class.
const StorageBufferStorageClassExtension = "VK_KHR_storage_buffer_storage_class"

// PortabilityEnumerationExtension lists portability implementations such as
// MoltenVK among the physical devices.
const PortabilityEnumerationExtension = "VK_KHR_portability_enumeration"

// InstanceCreateEnumeratePortability is VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR.
const InstanceCreateEnumeratePortability core1_0.InstanceCreateFlags = 0x00000001

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

var deviceExtensions = []string{
	khr_swapchain.ExtensionName,
	StorageBufferStorageClassExtension,
}

// InitOptions configures Init.
type InitOptions struct {
	// Loader resolves the Vulkan entry points, usually from the window system.
	Loader core.Loader
	// InstanceExtensions are required by the window system to create a surface.
	InstanceExtensions []string

	ApplicationName string
	Validation      bool
	Logger          *log.Logger
}

// Context owns the instance, the logical device and its single work queue. It is
// created once at startup and shared read-only with the shader loader and scenes.
type Context struct {
	Instance       core1_0.Instance
	PhysicalDevice core1_0.PhysicalDevice
	Device         core1_0.Device
	Queue          core1_0.Queue
	QueueFamily    int
	CommandPool    core1_0.CommandPool

	// Features holds the features that were enabled on Device.
	Features *core1_0.PhysicalDeviceFeatures

	Logger *log.Logger

	debugMessenger ext_debug_utils.Messenger
}

// Init creates the instance and picks the first physical device and the first
// queue family that supports graphics. It enables extended storage image formats
// and standard-layout storage buffers, which the compute shaders depend on.
// Every failure is marked with ErrFatal.
func Init(opts InitOptions) (*Context, error) {
	ctx := &Context{Logger: opts.Logger}
	if ctx.Logger == nil {
		ctx.Logger = log.Default()
	}

	err := ctx.createInstance(opts)
	if err != nil {
		ctx.Destroy()
		return nil, Fatal(err)
	}

	err = ctx.createLogicalDevice()
	if err != nil {
		ctx.Destroy()
		return nil, Fatal(err)
	}

	err = ctx.createCommandPool()
	if err != nil {
		ctx.Destroy()
		return nil, Fatal(err)
	}

	return ctx, nil
}

func (c *Context) createInstance(opts InitOptions) error {
	if opts.Loader == nil {
		return errors.New("createInstance: no vulkan loader")
	}

	appName := opts.ApplicationName
	if appName == "" {
		appName = "Compute Raytracer"
	}

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    appName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := opts.Loader.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range opts.InstanceExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("createInstance: cannot initialize window system: missing extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	_, enumerationSupported := extensions[PortabilityEnumerationExtension]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, PortabilityEnumerationExtension)
		instanceOptions.Flags |= InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)

		layers, _, err := opts.Loader.AvailableLayers()
		if err != nil {
			return err
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("createInstance: cannot add validation- layer %s not available- install LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = c.debugMessengerOptions()
	}

	c.Instance, _, err = opts.Loader.CreateInstance(nil, instanceOptions)
	if err != nil {
		return err
	}

	if opts.Validation {
		debugLoader := ext_debug_utils.CreateExtensionFromInstance(c.Instance)
		c.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(c.Instance, nil, c.debugMessengerOptions())
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) logDebug(msgType ext_debug_utils.MessageTypes, severity ext_debug_utils.MessageSeverities, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	c.Logger.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

func (c *Context) createLogicalDevice() error {
	physicalDevices, _, err := c.Instance.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	if len(physicalDevices) == 0 {
		return errors.New("no devices available")
	}
	c.PhysicalDevice = physicalDevices[0]

	properties, err := c.PhysicalDevice.Properties()
	if err != nil {
		return err
	}
	c.Logger.Printf("Using device %s, type: %s", properties.DriverName, properties.DriverType)

	graphicsFamily := -1
	for queueFamilyIdx, queueFamily := range c.PhysicalDevice.QueueFamilyProperties() {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			graphicsFamily = queueFamilyIdx
			break
		}
	}
	if graphicsFamily < 0 {
		return errors.New("couldn't find any queue family supporting graphical operations")
	}
	c.QueueFamily = graphicsFamily

	extensionNames := append([]string(nil), deviceExtensions...)

	// Makes the device usable through vulkan portability, necessary to run on mac
	extensions, _, err := c.PhysicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return err
	}

	for _, ext := range deviceExtensions {
		_, supported := extensions[ext]
		if !supported {
			return errors.Newf("device is missing required extension %s", ext)
		}
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	c.Features = &core1_0.PhysicalDeviceFeatures{
		ShaderStorageImageExtendedFormats: true,
	}

	c.Device, _, err = c.PhysicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: graphicsFamily,
				QueuePriorities:  []float32{0.5},
			},
		},
		EnabledFeatures:       c.Features,
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create a device")
	}

	c.Queue = c.Device.GetQueue(graphicsFamily, 0)
	return nil
}

func (c *Context) createCommandPool() error {
	pool, _, err := c.Device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: &c.QueueFamily,
	})
	if err != nil {
		return err
	}

	c.CommandPool = pool
	return nil
}

// HasStorageImageExtendedFormats reports whether the device was created with
// extended storage image formats enabled.
func (c *Context) HasStorageImageExtendedFormats() bool {
	return c != nil && c.Features != nil && c.Features.ShaderStorageImageExtendedFormats
}

// WaitIdle blocks until all work submitted to the device has finished.
func (c *Context) WaitIdle() error {
	if c.Device == nil {
		return nil
	}
	_, err := c.Device.WaitIdle()
	return err
}

// Destroy releases the command pool, device and instance.
func (c *Context) Destroy() {
	if c.CommandPool != nil {
		c.CommandPool.Destroy(nil)
		c.CommandPool = nil
	}

	if c.Device != nil {
		c.Device.Destroy(nil)
		c.Device = nil
	}

	if c.debugMessenger != nil {
		c.debugMessenger.Destroy(nil)
		c.debugMessenger = nil
	}

	if c.Instance != nil {
		c.Instance.Destroy(nil)
		c.Instance = nil
	}
}
