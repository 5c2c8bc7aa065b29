package model

import "genshai/platform"

func InstallDB() {
	db := platform.DB
	if err := db.AutoMigrate(
		&User{},
		&Conversation{},
		&Message{},
		&UserAgent{}); err != nil {
		panic(err)
	}
}
