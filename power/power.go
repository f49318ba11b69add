// Package power drives the observatory power distribution unit, a modbus RTU
// relay board feeding the mount drives and accessories.
package power

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/openastro/mount_interface/internal/modbus"
)

type Status struct {
	// CommandDrivePower and CommandAuxPower are the commanded relay states.
	CommandDrivePower bool
	CommandAuxPower   bool

	// DrivePowered and AuxPowered are the sensed output states.
	DrivePowered bool
	AuxPowered   bool
	Fault        bool
}

type StatusCallback func(status Status)

type PDU struct {
	statusCallback StatusCallback
	mu             sync.Mutex
	client         *modbus.Client
	relays         int
	coils          []bool
	inputs         []bool
}

func Connect(ctx context.Context, port string, baud int, slaveId byte, statusCallback StatusCallback) (*PDU, error) {
	p := &PDU{
		client: &modbus.Client{
			Port:     port,
			BaudRate: baud,
			SlaveId:  slaveId,
		},
		statusCallback: statusCallback,
	}
	p.client.Poll = p.pollOnce
	return p, p.client.Connect(ctx)
}

func (p *PDU) pollOnce() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	results, err := p.client.ReadInputRegisters(0, 1)
	if err != nil {
		return err
	}
	relays := binary.BigEndian.Uint16(results)

	coils, err := p.client.ReadCoils(0, relays)
	if err != nil {
		return err
	}
	inputs, err := p.client.ReadDiscreteInputs(0, relays+1)
	if err != nil {
		return err
	}
	p.relays = int(relays)
	p.coils = modbus.BytesToBits(coils)
	p.inputs = modbus.BytesToBits(inputs)
	p.notifyStatus()
	return nil
}

func (p *PDU) notifyStatus() {
	status := p.parseRegisters()
	p.statusCallback(status)
}

func (p *PDU) parseRegisters() Status {
	if len(p.coils) < 2 || len(p.inputs) < 3 {
		return Status{Fault: true}
	}
	return Status{
		CommandDrivePower: p.coils[0],
		CommandAuxPower:   p.coils[1],

		Fault:        p.inputs[0],
		DrivePowered: p.inputs[1],
		AuxPowered:   p.inputs[2],
	}
}

func (p *PDU) SetDrivePower(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.relays < 1 {
		return fmt.Errorf("PDU not yet polled")
	}
	return p.client.WriteCoil(0, enabled)
}

func (p *PDU) SetAuxPower(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.relays < 2 {
		return fmt.Errorf("PDU not yet polled")
	}
	return p.client.WriteCoil(1, enabled)
}
