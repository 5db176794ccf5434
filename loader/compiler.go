package loader

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/raytracer/gpu"
)

// Compiler turns compute shader source into SPIR-V. path is only used for
// diagnostics; includes are already expanded in source.
type Compiler interface {
	Compile(path string, source string) ([]byte, error)
}

// Definer is implemented by compilers that predefine macros, so that includes
// under #if groups are resolved against the same macros the compiler sees.
type Definer interface {
	Defines() map[string]string
}

// GLSLC compiles with the glslc executable from the Vulkan SDK or shaderc.
type GLSLC struct {
	// Executable defaults to "glslc" looked up in PATH.
	Executable string
	// Args are appended to the default arguments, e.g. "-O".
	Args []string
}

func (g GLSLC) Compile(path string, source string) ([]byte, error) {
	executable := g.Executable
	if executable == "" {
		executable = "glslc"
	}

	args := []string{
		"-fshader-stage=compute",
		"--target-env=vulkan1.0",
		"-fentry-point=" + EntryPoint,
		"-o", "-",
	}
	args = append(args, g.Args...)
	args = append(args, "-")

	cmd := exec.Command(executable, args...)
	cmd.Stdin = bytes.NewBufferString(source)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &CompileError{Path: path, Log: stderr.String()}
		}
		return nil, gpu.Fatal(errors.Wrapf(err, "cannot run shader compiler %s", executable))
	}

	if stdout.Len() == 0 || stdout.Len()%4 != 0 {
		return nil, &CompileError{Path: path, Log: "compiler produced no valid SPIR-V\n" + stderr.String()}
	}

	return stdout.Bytes(), nil
}

// Defines returns the macros set by -DNAME and -DNAME=VALUE arguments.
func (g GLSLC) Defines() map[string]string {
	defines := make(map[string]string)
	for _, arg := range g.Args {
		macro, ok := strings.CutPrefix(arg, "-D")
		if !ok || macro == "" {
			continue
		}
		name, value, _ := strings.Cut(macro, "=")
		defines[name] = value
	}
	return defines
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
