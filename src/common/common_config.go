package common

type LogConfig struct {
	File       string `yaml:"log_file"`
	MaxSize    int    `yaml:"log_max_size"`
	MaxBackups int    `yaml:"log_max_backups"`
	MaxAge     int    `yaml:"log_max_age"`
	Compress   bool   `yaml:"log_compress"`
}

const defaultLogMaxSize = 100

func (lc LogConfig) maxSize() int {
	if lc.MaxSize <= 0 {
		return defaultLogMaxSize
	}
	return lc.MaxSize
}
