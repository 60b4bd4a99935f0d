package sqlstore

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// PeerBackend persists PeerDescriptor across peer_descriptor, network_interface_descriptor,
// network_interface_kind_can, device_descriptor, executor_descriptor and
// executor_kind_container/executor_kind_executable, one logical entity per transaction.
type PeerBackend struct {
	db *DB
}

func NewPeerBackend(db *DB) *PeerBackend { return &PeerBackend{db: db} }

type peerRow struct {
	Id         string         `db:"id"`
	Name       string         `db:"name"`
	Location   sql.NullString `db:"location"`
	BridgeName sql.NullString `db:"bridge_name"`
}

type interfaceRow struct {
	Id     string `db:"id"`
	PeerId string `db:"peer_id"`
	Name   string `db:"name"`
	Kind   string `db:"kind"`
}

type canRow struct {
	InterfaceId     string  `db:"interface_id"`
	Bitrate         uint32  `db:"bitrate"`
	SamplePoint     float32 `db:"sample_point"`
	FD              bool    `db:"fd"`
	DataBitrate     uint32  `db:"data_bitrate"`
	DataSamplePoint float32 `db:"data_sample_point"`
}

type deviceRow struct {
	Id          string `db:"id"`
	PeerId      string `db:"peer_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Location    string `db:"location"`
	InterfaceId string `db:"interface_id"`
	Tags        sql.NullString `db:"tags"`
}

type executorRow struct {
	Id         string         `db:"id"`
	PeerId     string         `db:"peer_id"`
	Kind       string         `db:"kind"`
	ResultsURL sql.NullString `db:"results_url"`
}

type containerRow struct {
	ExecutorId string         `db:"executor_id"`
	Engine     string         `db:"engine"`
	Name       string         `db:"name"`
	Image      string         `db:"image"`
	Volumes    sql.NullString `db:"volumes"`
	Devices    sql.NullString `db:"devices"`
	Envs       sql.NullString `db:"envs"`
	Ports      sql.NullString `db:"ports"`
	Command    string         `db:"command"`
	Args       sql.NullString `db:"args"`
}

type executableRow struct {
	ExecutorId string         `db:"executor_id"`
	Path       string         `db:"path"`
	Args       sql.NullString `db:"args"`
}

// Insert writes every table backing one PeerDescriptor inside a single transaction.
func (b *PeerBackend) Insert(ctx context.Context, id ids.PeerId, p model.PeerDescriptor) error {
	err := withTx(ctx, b.db.DB, func(tx *sqlx.Tx) error {
		row := peerRow{Id: id.String(), Name: string(p.Name)}
		if p.Location != nil {
			row.Location = sql.NullString{String: *p.Location, Valid: true}
		}
		if p.Network.BridgeName != nil {
			row.BridgeName = sql.NullString{String: string(*p.Network.BridgeName), Valid: true}
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO peer_descriptor (id, name, location, bridge_name) VALUES (:id, :name, :location, :bridge_name)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, location = EXCLUDED.location, bridge_name = EXCLUDED.bridge_name
		`, row); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM network_interface_descriptor WHERE peer_id = $1`, id.String()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM device_descriptor WHERE peer_id = $1`, id.String()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM executor_descriptor WHERE peer_id = $1`, id.String()); err != nil {
			return err
		}

		for _, iface := range p.Network.Interfaces {
			irow := interfaceRow{Id: iface.Id.String(), PeerId: id.String(), Name: string(iface.Name), Kind: string(iface.Configuration.Kind)}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO network_interface_descriptor (id, peer_id, name, kind) VALUES (:id, :peer_id, :name, :kind)
			`, irow); err != nil {
				return err
			}
			if iface.Configuration.Can != nil {
				crow := canRow{
					InterfaceId:     iface.Id.String(),
					Bitrate:         iface.Configuration.Can.Bitrate,
					SamplePoint:     iface.Configuration.Can.SamplePoint,
					FD:              iface.Configuration.Can.FD,
					DataBitrate:     iface.Configuration.Can.DataBitrate,
					DataSamplePoint: iface.Configuration.Can.DataSamplePoint,
				}
				if _, err := tx.NamedExecContext(ctx, `
					INSERT INTO network_interface_kind_can (interface_id, bitrate, sample_point, fd, data_bitrate, data_sample_point)
					VALUES (:interface_id, :bitrate, :sample_point, :fd, :data_bitrate, :data_sample_point)
				`, crow); err != nil {
					return err
				}
			}
		}

		for _, d := range p.Topology.Devices {
			drow := deviceRow{
				Id:          d.Id.String(),
				PeerId:      id.String(),
				Name:        d.Name,
				Description: d.Description,
				Location:    d.Location,
				InterfaceId: d.Interface.String(),
				Tags:        sql.NullString{String: joinStrings(d.Tags), Valid: len(d.Tags) > 0},
			}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO device_descriptor (id, peer_id, name, description, location, interface_id, tags)
				VALUES (:id, :peer_id, :name, :description, :location, :interface_id, :tags)
			`, drow); err != nil {
				return err
			}
		}

		for _, e := range p.Executors {
			erow := executorRow{Id: e.Id.String(), PeerId: id.String(), Kind: string(e.Kind.Tag)}
			if e.ResultsURL != nil {
				erow.ResultsURL = sql.NullString{String: *e.ResultsURL, Valid: true}
			}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO executor_descriptor (id, peer_id, kind, results_url) VALUES (:id, :peer_id, :kind, :results_url)
			`, erow); err != nil {
				return err
			}
			switch e.Kind.Tag {
			case model.ExecutorKindContainer:
				c := e.Kind.Container
				crow := containerRow{
					ExecutorId: e.Id.String(), Engine: string(c.Engine), Name: c.Name, Image: c.Image,
					Volumes: sql.NullString{String: joinStrings(c.Volumes), Valid: len(c.Volumes) > 0},
					Devices: sql.NullString{String: joinStrings(c.Devices), Valid: len(c.Devices) > 0},
					Envs:    sql.NullString{String: joinEnvs(c.Envs), Valid: len(c.Envs) > 0},
					Ports:   sql.NullString{String: joinStrings(c.Ports), Valid: len(c.Ports) > 0},
					Command: c.Command,
					Args:    sql.NullString{String: joinStrings(c.Args), Valid: len(c.Args) > 0},
				}
				if _, err := tx.NamedExecContext(ctx, `
					INSERT INTO executor_kind_container (executor_id, engine, name, image, volumes, devices, envs, ports, command, args)
					VALUES (:executor_id, :engine, :name, :image, :volumes, :devices, :envs, :ports, :command, :args)
				`, crow); err != nil {
					return err
				}
			case model.ExecutorKindExecutable:
				ex := e.Kind.Executable
				xrow := executableRow{ExecutorId: e.Id.String(), Path: ex.Path, Args: sql.NullString{String: joinStrings(ex.Args), Valid: len(ex.Args) > 0}}
				if _, err := tx.NamedExecContext(ctx, `
					INSERT INTO executor_kind_executable (executor_id, path, args) VALUES (:executor_id, :path, :args)
				`, xrow); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return errors.Wrapf(err, "sqlstore: inserting peer %s", id)
}

func (b *PeerBackend) Remove(ctx context.Context, id ids.PeerId) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM peer_descriptor WHERE id = $1`, id.String())
	return errors.Wrapf(err, "sqlstore: removing peer %s", id)
}

func (b *PeerBackend) Get(ctx context.Context, id ids.PeerId) (model.PeerDescriptor, bool, error) {
	var row peerRow
	if err := b.db.GetContext(ctx, &row, `SELECT id, name, location, bridge_name FROM peer_descriptor WHERE id = $1`, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PeerDescriptor{}, false, nil
		}
		return model.PeerDescriptor{}, false, errors.Wrapf(err, "sqlstore: getting peer %s", id)
	}
	p, err := b.assemble(ctx, row)
	return p, true, err
}

func (b *PeerBackend) List(ctx context.Context) ([]model.PeerDescriptor, error) {
	var rows []peerRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT id, name, location, bridge_name FROM peer_descriptor`); err != nil {
		return nil, errors.Wrap(err, "sqlstore: listing peers")
	}
	out := make([]model.PeerDescriptor, 0, len(rows))
	for _, row := range rows {
		p, err := b.assemble(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (b *PeerBackend) assemble(ctx context.Context, row peerRow) (model.PeerDescriptor, error) {
	peerId, err := ids.ParsePeerId(row.Id)
	if err != nil {
		return model.PeerDescriptor{}, err
	}
	p := model.PeerDescriptor{Id: peerId, Name: model.PeerName(row.Name)}
	if row.Location.Valid {
		p.Location = &row.Location.String
	}
	if row.BridgeName.Valid {
		name := model.NetworkInterfaceName(row.BridgeName.String)
		p.Network.BridgeName = &name
	}

	var ifaceRows []interfaceRow
	if err := b.db.SelectContext(ctx, &ifaceRows, `SELECT id, peer_id, name, kind FROM network_interface_descriptor WHERE peer_id = $1`, row.Id); err != nil {
		return model.PeerDescriptor{}, err
	}
	for _, ir := range ifaceRows {
		ifaceId, err := ids.ParseNetworkInterfaceId(ir.Id)
		if err != nil {
			return model.PeerDescriptor{}, err
		}
		iface := model.NetworkInterfaceDescriptor{
			Id:   ifaceId,
			Name: model.NetworkInterfaceName(ir.Name),
		}
		switch model.NetworkInterfaceConfigurationKind(ir.Kind) {
		case model.InterfaceKindCan:
			var c canRow
			if err := b.db.GetContext(ctx, &c, `SELECT interface_id, bitrate, sample_point, fd, data_bitrate, data_sample_point FROM network_interface_kind_can WHERE interface_id = $1`, ir.Id); err != nil {
				return model.PeerDescriptor{}, err
			}
			iface.Configuration = model.CanConfiguration(model.CanParameters{
				Bitrate: c.Bitrate, SamplePoint: c.SamplePoint, FD: c.FD,
				DataBitrate: c.DataBitrate, DataSamplePoint: c.DataSamplePoint,
			})
		case model.InterfaceKindVCan:
			iface.Configuration = model.VCanConfiguration()
		default:
			iface.Configuration = model.EthernetConfiguration()
		}
		p.Network.Interfaces = append(p.Network.Interfaces, iface)
	}

	var deviceRows []deviceRow
	if err := b.db.SelectContext(ctx, &deviceRows, `SELECT id, peer_id, name, description, location, interface_id, tags FROM device_descriptor WHERE peer_id = $1`, row.Id); err != nil {
		return model.PeerDescriptor{}, err
	}
	for _, dr := range deviceRows {
		devId, err := ids.ParseDeviceId(dr.Id)
		if err != nil {
			return model.PeerDescriptor{}, err
		}
		ifaceId, err := ids.ParseNetworkInterfaceId(dr.InterfaceId)
		if err != nil {
			return model.PeerDescriptor{}, err
		}
		p.Topology.Devices = append(p.Topology.Devices, model.Device{
			Id: devId, Name: dr.Name, Description: dr.Description, Location: dr.Location,
			Interface: ifaceId, Tags: splitStrings(dr.Tags.String),
		})
	}

	var execRows []executorRow
	if err := b.db.SelectContext(ctx, &execRows, `SELECT id, peer_id, kind, results_url FROM executor_descriptor WHERE peer_id = $1`, row.Id); err != nil {
		return model.PeerDescriptor{}, err
	}
	for _, er := range execRows {
		execId, err := ids.ParseExecutorId(er.Id)
		if err != nil {
			return model.PeerDescriptor{}, err
		}
		desc := model.ExecutorDescriptor{Id: execId}
		if er.ResultsURL.Valid {
			desc.ResultsURL = &er.ResultsURL.String
		}
		switch model.ExecutorKindTag(er.Kind) {
		case model.ExecutorKindContainer:
			var c containerRow
			if err := b.db.GetContext(ctx, &c, `SELECT executor_id, engine, name, image, volumes, devices, envs, ports, command, args FROM executor_kind_container WHERE executor_id = $1`, er.Id); err != nil {
				return model.PeerDescriptor{}, err
			}
			kind := model.ContainerExecutorKind(model.ContainerExecutor{
				Engine: model.ContainerEngine(c.Engine), Name: c.Name, Image: c.Image,
				Volumes: splitStrings(c.Volumes.String), Devices: splitStrings(c.Devices.String),
				Envs: splitEnvs(c.Envs.String), Ports: splitStrings(c.Ports.String),
				Command: c.Command, Args: splitStrings(c.Args.String),
			})
			desc.Kind = kind
		case model.ExecutorKindExecutable:
			var x executableRow
			if err := b.db.GetContext(ctx, &x, `SELECT executor_id, path, args FROM executor_kind_executable WHERE executor_id = $1`, er.Id); err != nil {
				return model.PeerDescriptor{}, err
			}
			desc.Kind = model.ExecutableExecutorKind(model.ExecutableExecutor{Path: x.Path, Args: splitStrings(x.Args.String)})
		}
		p.Executors = append(p.Executors, desc)
	}

	return p, nil
}
