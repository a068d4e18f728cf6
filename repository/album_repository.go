package repository

import (
	"context"
	"fmt"

	"CineFM/db"
	"CineFM/model"

	"gorm.io/gorm"
)

// AlbumRepository 定义专辑（合集）相关的数据库操作接口
type AlbumRepository interface {
	// CreateAlbum 创建新专辑
	CreateAlbum(ctx context.Context, album *model.Album) (int64, error)

	// GetAlbumByID 根据ID获取专辑信息
	GetAlbumByID(ctx context.Context, id int64) (*model.Album, error)

	// ListRecentAlbums 按创建时间倒序返回最近的专辑
	ListRecentAlbums(ctx context.Context, limit int) ([]*model.Album, error)

	// AddTrackToAlbum 添加歌曲到专辑
	AddTrackToAlbum(ctx context.Context, albumID, trackID int64, position int) error

	// GetAlbumLeadTrack 返回专辑的第一首曲目，没有时返回 nil
	GetAlbumLeadTrack(ctx context.Context, albumID int64) (*model.Track, error)

	// GetAlbumTracks 获取专辑中的所有歌曲（按位置排序）
	GetAlbumTracks(ctx context.Context, albumID int64) ([]*model.Track, error)
}

// gormAlbumRepository GORM 实现的专辑仓库
type gormAlbumRepository struct {
	db *gorm.DB
}

// NewGormAlbumRepository 创建 GORM 专辑仓库实例
func NewGormAlbumRepository() AlbumRepository {
	return &gormAlbumRepository{db: db.GormDB}
}

// CreateAlbum 创建新专辑
func (r *gormAlbumRepository) CreateAlbum(ctx context.Context, album *model.Album) (int64, error) {
	if err := r.db.WithContext(ctx).Create(album).Error; err != nil {
		return 0, fmt.Errorf("failed to create album: %w", err)
	}
	return album.ID, nil
}

// GetAlbumByID 根据ID获取专辑信息
func (r *gormAlbumRepository) GetAlbumByID(ctx context.Context, id int64) (*model.Album, error) {
	var album model.Album
	err := r.db.WithContext(ctx).First(&album, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get album by id %d: %w", id, err)
	}
	return &album, nil
}

// ListRecentAlbums 按创建时间倒序返回最近的专辑
func (r *gormAlbumRepository) ListRecentAlbums(ctx context.Context, limit int) ([]*model.Album, error) {
	if limit <= 0 {
		limit = 10
	}

	var albums []*model.Album
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&albums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent albums: %w", err)
	}
	return albums, nil
}

// AddTrackToAlbum 添加歌曲到专辑
func (r *gormAlbumRepository) AddTrackToAlbum(ctx context.Context, albumID, trackID int64, position int) error {
	at := &model.AlbumTrack{
		AlbumID:  albumID,
		TrackID:  trackID,
		Position: position,
	}
	if err := r.db.WithContext(ctx).Create(at).Error; err != nil {
		return fmt.Errorf("failed to add track %d to album %d: %w", trackID, albumID, err)
	}
	return nil
}

// GetAlbumLeadTrack 返回专辑位置最靠前的曲目
func (r *gormAlbumRepository) GetAlbumLeadTrack(ctx context.Context, albumID int64) (*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Table("album_tracks").
		Select("tracks.*").
		Joins("JOIN tracks ON tracks.id = album_tracks.track_id").
		Where("album_tracks.album_id = ? AND tracks.state = 1", albumID).
		Order("album_tracks.position ASC").
		Limit(1).
		Scan(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get lead track of album %d: %w", albumID, err)
	}
	if len(tracks) == 0 {
		return nil, nil
	}
	return tracks[0], nil
}

// GetAlbumTracks 获取专辑中的所有歌曲
func (r *gormAlbumRepository) GetAlbumTracks(ctx context.Context, albumID int64) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Table("album_tracks").
		Select("tracks.*").
		Joins("JOIN tracks ON tracks.id = album_tracks.track_id").
		Where("album_tracks.album_id = ? AND tracks.state = 1", albumID).
		Order("album_tracks.position ASC").
		Scan(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get tracks of album %d: %w", albumID, err)
	}
	return tracks, nil
}
