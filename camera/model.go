package camera

import (
	"fmt"
	"strings"
)

// Detector geometry constants.
const (
	// ChipColumns is the pixel column count of one chip.
	ChipColumns = 80
	// ModuleRows is the pixel row count of one module.
	ModuleRows = 120
	// PixelSize is the pixel pitch in metres.
	PixelSize = 130e-6
)

// Model identifies an XPAD detector model. The numeric value is the model id
// used by the DefineDetectorModel command.
type Model int

const (
	ModelS10 Model = iota
	ModelC10
	ModelA10
	ModelS70
	ModelS70C
	ModelS140
	ModelS340
	ModelS540
	ModelS540V
	ModelS1400
)

type modelInfo struct {
	name    string
	modules int
	chips   int
}

var models = [...]modelInfo{
	ModelS10:   {name: "XPAD_S10", modules: 1, chips: 1},
	ModelC10:   {name: "XPAD_C10", modules: 1, chips: 1},
	ModelA10:   {name: "XPAD_A10", modules: 1, chips: 1},
	ModelS70:   {name: "XPAD_S70", modules: 1, chips: 7},
	ModelS70C:  {name: "XPAD_S70C", modules: 1, chips: 7},
	ModelS140:  {name: "XPAD_S140", modules: 2, chips: 7},
	ModelS340:  {name: "XPAD_S340", modules: 5, chips: 7},
	ModelS540:  {name: "XPAD_S540", modules: 8, chips: 7},
	ModelS540V: {name: "XPAD_S540V", modules: 8, chips: 7},
	ModelS1400: {name: "XPAD_S1400", modules: 20, chips: 7},
}

// ParseModel parses a model name such as "XPAD_S70" or "S70".
func ParseModel(name string) (Model, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "XPAD_") {
		n = "XPAD_" + n
	}
	for i, m := range models {
		if m.name == n {
			return Model(i), nil
		}
	}

	return 0, &ConfigError{Field: "model", Value: name, Reason: "expected one of " + strings.Join(ModelNames(), ", ")}
}

// ModelNames returns the names of every supported model.
func ModelNames() []string {
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.name
	}

	return names
}

// Valid reports whether m is a known model.
func (m Model) Valid() bool { return m >= 0 && int(m) < len(models) }

func (m Model) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Model(%d)", int(m))
	}

	return models[m].name
}

// ModuleNumber returns the number of modules.
func (m Model) ModuleNumber() int { return models[m].modules }

// ChipNumber returns the number of chips per module.
func (m Model) ChipNumber() int { return models[m].chips }

// ModuleMask returns the bit mask selecting every module.
func (m Model) ModuleMask() int { return 1<<models[m].modules - 1 }

// ChipMask returns the bit mask selecting every chip of a module.
func (m Model) ChipMask() int { return 1<<models[m].chips - 1 }

// ImageSize returns the image width and height in pixels. Modules are stacked
// vertically and chips are laid side by side.
func (m Model) ImageSize() (width int, height int) {
	return ChipColumns * m.ChipNumber(), ModuleRows * m.ModuleNumber()
}

// Register is a global (per chip) configuration register.
type Register int

const (
	RegAMPTP Register = iota
	RegIMFP
	RegIOTA
	RegIPRE
	RegITHL
	RegITUNE
	RegIBUFF
)

type registerInfo struct {
	name string
	id   int
	def  int
}

var registers = [...]registerInfo{
	RegAMPTP: {name: "AMPTP", id: 31, def: 0},
	RegIMFP:  {name: "IMFP", id: 59, def: 50},
	RegIOTA:  {name: "IOTA", id: 60, def: 40},
	RegIPRE:  {name: "IPRE", id: 61, def: 60},
	RegITHL:  {name: "ITHL", id: 62, def: 25},
	RegITUNE: {name: "ITUNE", id: 63, def: 100},
	RegIBUFF: {name: "IBUFF", id: 64, def: 0},
}

// Registers returns every global register in wire order.
func Registers() []Register {
	regs := make([]Register, len(registers))
	for i := range registers {
		regs[i] = Register(i)
	}

	return regs
}

// ParseRegister parses a register name.
func ParseRegister(name string) (Register, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for i, r := range registers {
		if r.name == n {
			return Register(i), nil
		}
	}

	return 0, &ConfigError{Field: "register", Value: name, Reason: "expected AMPTP, IMFP, IOTA, IPRE, ITHL, ITUNE or IBUFF"}
}

// Valid reports whether r is a known register.
func (r Register) Valid() bool { return r >= 0 && int(r) < len(registers) }

func (r Register) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Register(%d)", int(r))
	}

	return registers[r].name
}

// ID returns the numeric register id used by the legacy protocol.
func (r Register) ID() int { return registers[r].id }

// Default returns the register value loaded by the default configuration job.
func (r Register) Default() int { return registers[r].def }
