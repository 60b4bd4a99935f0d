package sqlstore

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// ClusterConfigurationBackend persists ClusterConfiguration in the cluster_configuration table.
type ClusterConfigurationBackend struct {
	db *DB
}

func NewClusterConfigurationBackend(db *DB) *ClusterConfigurationBackend {
	return &ClusterConfigurationBackend{db: db}
}

type clusterConfigurationRow struct {
	Id           string `db:"id"`
	Name         string `db:"name"`
	LeaderPeerId string `db:"leader_peer_id"`
	DeviceIds    string `db:"device_ids"`
}

func (b *ClusterConfigurationBackend) Insert(ctx context.Context, id ids.ClusterId, c model.ClusterConfiguration) error {
	deviceIds := make([]string, 0, len(c.Devices))
	for d := range c.Devices {
		deviceIds = append(deviceIds, d.String())
	}
	row := clusterConfigurationRow{
		Id: id.String(), Name: string(c.Name), LeaderPeerId: c.Leader.String(), DeviceIds: joinStrings(deviceIds),
	}
	_, err := b.db.NamedExecContext(ctx, `
		INSERT INTO cluster_configuration (id, name, leader_peer_id, device_ids) VALUES (:id, :name, :leader_peer_id, :device_ids)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, leader_peer_id = EXCLUDED.leader_peer_id, device_ids = EXCLUDED.device_ids
	`, row)
	return errors.Wrapf(err, "sqlstore: inserting cluster configuration %s", id)
}

func (b *ClusterConfigurationBackend) Remove(ctx context.Context, id ids.ClusterId) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM cluster_configuration WHERE id = $1`, id.String())
	return errors.Wrapf(err, "sqlstore: removing cluster configuration %s", id)
}

func (b *ClusterConfigurationBackend) Get(ctx context.Context, id ids.ClusterId) (model.ClusterConfiguration, bool, error) {
	var row clusterConfigurationRow
	if err := b.db.GetContext(ctx, &row, `SELECT id, name, leader_peer_id, device_ids FROM cluster_configuration WHERE id = $1`, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ClusterConfiguration{}, false, nil
		}
		return model.ClusterConfiguration{}, false, errors.Wrapf(err, "sqlstore: getting cluster configuration %s", id)
	}
	c, err := assembleClusterConfiguration(row)
	return c, true, err
}

func (b *ClusterConfigurationBackend) List(ctx context.Context) ([]model.ClusterConfiguration, error) {
	var rows []clusterConfigurationRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT id, name, leader_peer_id, device_ids FROM cluster_configuration`); err != nil {
		return nil, errors.Wrap(err, "sqlstore: listing cluster configurations")
	}
	out := make([]model.ClusterConfiguration, 0, len(rows))
	for _, row := range rows {
		c, err := assembleClusterConfiguration(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func assembleClusterConfiguration(row clusterConfigurationRow) (model.ClusterConfiguration, error) {
	clusterId, err := ids.ParseClusterId(row.Id)
	if err != nil {
		return model.ClusterConfiguration{}, err
	}
	leader, err := ids.ParsePeerId(row.LeaderPeerId)
	if err != nil {
		return model.ClusterConfiguration{}, err
	}
	devices := make(map[ids.DeviceId]struct{})
	for _, s := range splitStrings(row.DeviceIds) {
		d, err := ids.ParseDeviceId(s)
		if err != nil {
			return model.ClusterConfiguration{}, err
		}
		devices[d] = struct{}{}
	}
	return model.ClusterConfiguration{Id: clusterId, Name: model.ClusterName(row.Name), Leader: leader, Devices: devices}, nil
}

// ClusterDeploymentBackend persists ClusterDeployment in the cluster_deployment table. Its
// presence alone signals deployment intent.
type ClusterDeploymentBackend struct {
	db *DB
}

func NewClusterDeploymentBackend(db *DB) *ClusterDeploymentBackend {
	return &ClusterDeploymentBackend{db: db}
}

func (b *ClusterDeploymentBackend) Insert(ctx context.Context, id ids.ClusterId, d model.ClusterDeployment) error {
	_, err := b.db.ExecContext(ctx, `INSERT INTO cluster_deployment (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id.String())
	return errors.Wrapf(err, "sqlstore: inserting cluster deployment %s", id)
}

func (b *ClusterDeploymentBackend) Remove(ctx context.Context, id ids.ClusterId) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM cluster_deployment WHERE id = $1`, id.String())
	return errors.Wrapf(err, "sqlstore: removing cluster deployment %s", id)
}

func (b *ClusterDeploymentBackend) Get(ctx context.Context, id ids.ClusterId) (model.ClusterDeployment, bool, error) {
	var dbId string
	if err := b.db.GetContext(ctx, &dbId, `SELECT id FROM cluster_deployment WHERE id = $1`, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ClusterDeployment{}, false, nil
		}
		return model.ClusterDeployment{}, false, errors.Wrapf(err, "sqlstore: getting cluster deployment %s", id)
	}
	clusterId, err := ids.ParseClusterId(dbId)
	return model.ClusterDeployment{Id: clusterId}, true, err
}

func (b *ClusterDeploymentBackend) List(ctx context.Context) ([]model.ClusterDeployment, error) {
	var dbIds []string
	if err := b.db.SelectContext(ctx, &dbIds, `SELECT id FROM cluster_deployment`); err != nil {
		return nil, errors.Wrap(err, "sqlstore: listing cluster deployments")
	}
	out := make([]model.ClusterDeployment, 0, len(dbIds))
	for _, s := range dbIds {
		clusterId, err := ids.ParseClusterId(s)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ClusterDeployment{Id: clusterId})
	}
	return out, nil
}
