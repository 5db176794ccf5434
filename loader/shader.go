package loader

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/raytracer/gpu"
)

// EntryPoint is the name every compute shader must expose.
const EntryPoint = "main"

// Program is a compiled compute shader bound to its resource layout.
type Program struct {
	Module         core1_0.ShaderModule
	SetLayouts     []core1_0.DescriptorSetLayout
	PipelineLayout core1_0.PipelineLayout
	Layout         *Layout
}

type options struct {
	compiler Compiler
}

// Option configures Load.
type Option func(*options)

// WithCompiler replaces the default glslc compiler.
func WithCompiler(c Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// Load compiles the compute shader at path, resolving its includes, and creates the
// shader module, one descriptor set layout per set of layout and the pipeline layout.
//
// A device without extended storage image formats and a module the device rejects
// are fatal. Unreadable sources fail with *IOError, include problems with
// *IncludeError and compiler diagnostics with *CompileError.
func Load(ctx *gpu.Context, path string, layout *Layout, opts ...Option) (*Program, error) {
	if !ctx.HasStorageImageExtendedFormats() {
		return nil, gpu.Fatal(errors.New("device feature shaderStorageImageExtendedFormats required"))
	}
	if layout == nil {
		return nil, errors.New("cannot load a shader without a layout")
	}
	if err := layout.Err(); err != nil {
		return nil, errors.Wrapf(err, "invalid resource layout for %s", path)
	}

	o := options{compiler: GLSLC{}}
	for _, opt := range opts {
		opt(&o)
	}

	spirv, err := compileSource(path, o.compiler)
	if err != nil {
		return nil, err
	}

	program := &Program{Layout: layout}

	program.Module, _, err = ctx.Device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(spirv),
	})
	if err != nil {
		return nil, gpu.Fatal(errors.Wrapf(err, "failed to create shader module for %s", path))
	}

	for set := 0; set < layout.NumSets(); set++ {
		setLayout, _, err := ctx.Device.CreateDescriptorSetLayout(nil, layout.DescriptorSetLayoutInfo(set))
		if err != nil {
			program.Destroy()
			return nil, errors.Wrapf(err, "failed to create layout of descriptor set %d", set)
		}
		program.SetLayouts = append(program.SetLayouts, setLayout)
	}

	program.PipelineLayout, _, err = ctx.Device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts:         program.SetLayouts,
		PushConstantRanges: layout.PushConstantRanges(),
	})
	if err != nil {
		program.Destroy()
		return nil, errors.Wrap(err, "failed to create pipeline layout")
	}

	return program, nil
}

func compileSource(path string, compiler Compiler) ([]byte, error) {
	src, err := readSource(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}

	var defines map[string]string
	if definer, ok := compiler.(Definer); ok {
		defines = definer.Defines()
	}

	expanded, sources, err := expandIncludes(path, src, defines)
	if err != nil {
		return nil, err
	}

	spirv, err := compiler.Compile(path, expanded)
	if err != nil {
		var compileErr *CompileError
		if errors.As(err, &compileErr) {
			compileErr.Sources = sources
		}
		return nil, err
	}

	return spirv, nil
}

// Stage describes the compute stage for pipeline creation.
func (p *Program) Stage() core1_0.PipelineShaderStageCreateInfo {
	return core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageCompute,
		Module: p.Module,
		Name:   EntryPoint,
	}
}

// Destroy releases the pipeline layout, the set layouts and the module.
func (p *Program) Destroy() {
	if p.PipelineLayout != nil {
		p.PipelineLayout.Destroy(nil)
		p.PipelineLayout = nil
	}

	for _, setLayout := range p.SetLayouts {
		setLayout.Destroy(nil)
	}
	p.SetLayouts = nil

	if p.Module != nil {
		p.Module.Destroy(nil)
		p.Module = nil
	}
}
