package utils

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GetUUID 生成连接等使用的唯一 id
func GetUUID() string {
	u1, err := uuid.NewUUID()
	if err != nil {
		logrus.Errorf("[GetUUID] new uuid fail, err = %v", err)
		return uuid.NewString()
	}
	return u1.String()
}

// GetShortID uuid 的前 8 位，用于日志中区分连接
func GetShortID(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[:8]
}
