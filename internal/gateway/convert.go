package gateway

import (
	"github.com/diamondburned/arikawa/v3/discord"

	"github.com/Raikerian/voxd/internal/voicedriver"
)

func discordGuildID(id voicedriver.GuildID) discord.GuildID {
	return discord.GuildID(id)
}

func discordChannelID(id voicedriver.ChannelID) discord.ChannelID {
	return discord.ChannelID(id)
}
