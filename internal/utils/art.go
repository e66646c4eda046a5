package utils

const CloudSyncArt = `
  .--.
 (    ).-.   CloudSync
(___.__)__)`
