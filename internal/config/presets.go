package config

import (
	"fmt"
	"math"
	"slices"
)

var presets = map[string]func() *File{
	"adder_chain":       adderChain,
	"pendulum_pid":      pendulumPID,
	"spring_integrator": springIntegrator,
	"nested_gain":       nestedGain,
	"expression_wave":   expressionWave,
}

// Preset returns a fresh copy of a built-in diagram file.
func Preset(name string) (*File, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset: %s", name)
	}
	return fn(), nil
}

// PresetNames lists the built-in presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// adderChain computes y = (u0 + u1) + (u1 + u2) from three exported inputs.
func adderChain() *File {
	width := map[string]float64{"inputs": 2, "width": 3}
	return &File{
		Version: "1.0",
		Diagrams: []DiagramSpec{{
			Name: "adder_chain",
			Blocks: []BlockSpec{
				{Kind: "adder", Name: "adder0", Params: width},
				{Kind: "adder", Name: "adder1", Params: width},
				{Kind: "adder", Name: "adder2", Params: width},
			},
			Connections: []ConnectionSpec{
				{From: "adder0.sum", To: "adder2.u0"},
				{From: "adder1.sum", To: "adder2.u1"},
			},
			ExportInputs: []ExportSpec{
				{Port: "adder0.u0", Name: "x0"},
				{Port: "adder0.u1", Name: "x1"},
				{Port: "adder1.u0", Name: "x1"},
				{Port: "adder1.u1", Name: "x2"},
			},
			ExportOutputs: []ExportSpec{{Port: "adder2.sum", Name: "y"}},
		}},
		Inputs: []InputValue{
			{Name: "x0", Value: []float64{8, 10, 12}},
			{Name: "x1", Value: []float64{1, 2, 3}},
			{Name: "x2", Value: []float64{12, 12, 12}},
		},
	}
}

// pendulumPID swings a pendulum up to the inverted position.
func pendulumPID() *File {
	return &File{
		Version: "1.0",
		Diagrams: []DiagramSpec{{
			Name: "pendulum_pid",
			Blocks: []BlockSpec{
				{Kind: "pendulum", Name: "pendulum", Value: []float64{0.1, 0}},
				{Kind: "pid", Name: "pid", Params: map[string]float64{"kp": 40, "ki": 2, "kd": 8}},
				{Kind: "constant", Name: "target", Value: []float64{math.Pi, 0}},
			},
			Connections: []ConnectionSpec{
				{From: "pendulum.state", To: "pid.estimated_state"},
				{From: "target.y", To: "pid.desired_state"},
				{From: "pid.control", To: "pendulum.torque"},
			},
			ExportOutputs: []ExportSpec{
				{Port: "pendulum.state", Name: "state"},
				{Port: "pid.control", Name: "control"},
			},
		}},
		Sweep: &SweepSpec{Start: 0, Stop: 5, Dt: 0.05, Output: "control"},
	}
}

// springIntegrator drives a spring-mass with a sine force and integrates
// its state.
func springIntegrator() *File {
	return &File{
		Version: "1.0",
		Diagrams: []DiagramSpec{{
			Name: "spring_integrator",
			Blocks: []BlockSpec{
				{Kind: "sine", Name: "drive", Params: map[string]float64{"amplitude": 2, "frequency": 3}},
				{Kind: "spring_mass", Name: "spring", Value: []float64{1, 0}},
				{Kind: "integrator", Name: "area", Params: map[string]float64{"width": 2}},
			},
			Connections: []ConnectionSpec{
				{From: "drive.y", To: "spring.force"},
				{From: "spring.state", To: "area.u"},
			},
			ExportOutputs: []ExportSpec{
				{Port: "drive.y", Name: "force"},
				{Port: "spring.state", Name: "state"},
				{Port: "area.y", Name: "area"},
			},
		}},
		Sweep: &SweepSpec{Start: 0, Stop: 2 * math.Pi, Dt: 0.1, Output: "force"},
	}
}

// nestedGain chains two instances of a doubling sub-diagram.
func nestedGain() *File {
	return &File{
		Version: "1.0",
		Root:    "quadruple",
		Diagrams: []DiagramSpec{
			{
				Name:          "double",
				Blocks:        []BlockSpec{{Kind: "gain", Name: "k", Params: map[string]float64{"k": 2, "width": 3}}},
				ExportInputs:  []ExportSpec{{Port: "k.u", Name: "u"}},
				ExportOutputs: []ExportSpec{{Port: "k.y", Name: "y"}},
			},
			{
				Name: "quadruple",
				Blocks: []BlockSpec{
					{Kind: "constant", Name: "source", Value: []float64{1, 2, 3}},
					{Kind: KindDiagram, Name: "first", Ref: "double"},
					{Kind: KindDiagram, Name: "second", Ref: "double"},
				},
				Connections: []ConnectionSpec{
					{From: "source.y", To: "first.u"},
					{From: "first.y", To: "second.u"},
				},
				ExportOutputs: []ExportSpec{{Port: "second.y", Name: "y"}},
			},
		},
	}
}

// expressionWave modulates a constant with a CEL expression of time.
func expressionWave() *File {
	return &File{
		Version: "1.0",
		Diagrams: []DiagramSpec{{
			Name: "expression_wave",
			Blocks: []BlockSpec{
				{Kind: "constant", Name: "amplitude", Value: []float64{1, 0.5}},
				{
					Kind:   "expression",
					Name:   "wave",
					Expr:   "u[i] * sin(2.0 * t + double(i))",
					Params: map[string]float64{"inputs": 2, "width": 2},
				},
			},
			Connections:   []ConnectionSpec{{From: "amplitude.y", To: "wave.u"}},
			ExportOutputs: []ExportSpec{{Port: "wave.y", Name: "y"}},
		}},
		Sweep: &SweepSpec{Start: 0, Stop: 2 * math.Pi, Dt: 0.1},
	}
}
